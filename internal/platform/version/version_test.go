package version

import (
	"runtime"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("build info must never be empty: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	Version, Commit = "v1.2.0", "abc1234"
	t.Cleanup(func() { Version, Commit = "dev", "unknown" })

	if got, want := Get().String(), "v1.2.0 (abc1234)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
