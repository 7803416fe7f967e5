package domain

import "slices"

// Channel is a named topic in the live-update vocabulary.
type Channel string

const (
	ChannelRuns   Channel = "runs"
	ChannelXP     Channel = "xp"
	ChannelReplay Channel = "replay"
	ChannelStats  Channel = "stats"
	ChannelPrice  Channel = "price"

	// ChannelAll is a subscription wildcard only. Events are never published on it.
	ChannelAll Channel = "all"
)

var publishable = []Channel{ChannelRuns, ChannelXP, ChannelReplay, ChannelStats, ChannelPrice}

// AvailableChannels lists every name a client may subscribe to, in the order
// advertised on connect.
func AvailableChannels() []Channel {
	return append(slices.Clone(publishable), ChannelAll)
}

func (c Channel) Valid() bool {
	return c == ChannelAll || c.Publishable()
}

func (c Channel) Publishable() bool {
	return slices.Contains(publishable, c)
}

// CoordinatorOwned reports whether only the run coordinator may publish on c.
// Run and XP events must reflect persisted state.
func (c Channel) CoordinatorOwned() bool {
	return c == ChannelRuns || c == ChannelXP
}

// WireType is the envelope "type" a channel's events carry on the socket.
func (c Channel) WireType() string {
	if c == ChannelRuns {
		return "run_update"
	}
	return string(c) + "_update"
}
