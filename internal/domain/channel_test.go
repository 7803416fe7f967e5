package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailableChannels(t *testing.T) {
	assert.Equal(t,
		[]Channel{ChannelRuns, ChannelXP, ChannelReplay, ChannelStats, ChannelPrice, ChannelAll},
		AvailableChannels(),
	)
}

func TestChannel_Validity(t *testing.T) {
	tests := []struct {
		channel     Channel
		valid       bool
		publishable bool
	}{
		{ChannelRuns, true, true},
		{ChannelPrice, true, true},
		{ChannelAll, true, false},
		{"leaderboard", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, tt.channel.Valid(), "Valid(%q)", tt.channel)
		assert.Equal(t, tt.publishable, tt.channel.Publishable(), "Publishable(%q)", tt.channel)
	}
}

func TestChannel_CoordinatorOwned(t *testing.T) {
	assert.True(t, ChannelRuns.CoordinatorOwned())
	assert.True(t, ChannelXP.CoordinatorOwned())
	assert.False(t, ChannelReplay.CoordinatorOwned())
	assert.False(t, ChannelStats.CoordinatorOwned())
	assert.False(t, ChannelPrice.CoordinatorOwned())
}

func TestChannel_WireType(t *testing.T) {
	assert.Equal(t, "run_update", ChannelRuns.WireType())
	assert.Equal(t, "xp_update", ChannelXP.WireType())
	assert.Equal(t, "replay_update", ChannelReplay.WireType())
	assert.Equal(t, "stats_update", ChannelStats.WireType())
	assert.Equal(t, "price_update", ChannelPrice.WireType())
}

func TestLeaderboardKind_Valid(t *testing.T) {
	assert.True(t, LeaderboardCP.Valid())
	assert.True(t, LeaderboardDuration.Valid())
	assert.False(t, LeaderboardKind("xp").Valid())
}
