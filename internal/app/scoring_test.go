package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		cp       int
		duration int
		bonus    bool
		boosts   []int
		want     Outcome
	}{
		{"bonus doubles cp", 150, 60, true, []int{1, 2}, Outcome{FinalCP: 300, DBPMinted: 30, XPEarned: 50}},
		{"minimal run", 0, 30, false, nil, Outcome{FinalCP: 0, DBPMinted: 0, XPEarned: 11}},
		{"dbp rounds down", 99, 45, false, nil, Outcome{FinalCP: 99, DBPMinted: 9, XPEarned: 11}},
		{"max run", 10000, 300, false, []int{1, 2, 3, 4, 5}, Outcome{FinalCP: 10000, DBPMinted: 1000, XPEarned: 145}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.cp, tt.duration, tt.bonus, tt.boosts))
		})
	}
}

func TestCalculateXP_BonusThrowAdds25(t *testing.T) {
	without := CalculateXP(200, 90, false, 0)
	with := CalculateXP(200, 90, true, 0)
	assert.Equal(t, 15, without)
	assert.Equal(t, 25, with-without)
}
