package server

import (
	"fmt"
	"slices"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
	"github.com/labstack/echo/v4"
)

const defaultBroadcastType = "update"

type broadcastRequest struct {
	Channel domain.Channel `json:"channel"`
	Type    string         `json:"type"`
	Data    any            `json:"data"`
}

// handleBroadcast publishes an arbitrary event through the bus. It is a
// testing hook for frontends; the reported recipients are the connections
// matching the channel at publish time. Run and XP channels are refused.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if !broadcastable(req.Channel) {
		return apperrors.ValidationError(fmt.Sprintf("%s: %q", domain.ErrInvalidChannel, req.Channel)).
			WithContext("validChannels", slices.DeleteFunc(domain.AvailableChannels(), func(ch domain.Channel) bool {
				return !broadcastable(ch)
			}))
	}
	if req.Type == "" {
		req.Type = defaultBroadcastType
	}

	recipients := len(s.registry.Matching(req.Channel))
	if err := s.publisher.Publish(req.Channel, req.Type, req.Data); err != nil {
		return apperrors.InternalError("Failed to publish event", err)
	}

	return respond(c, fmt.Sprintf("Broadcast sent to %d clients", recipients), map[string]any{
		"channel":    req.Channel,
		"type":       req.Type,
		"recipients": recipients,
	})
}

func broadcastable(ch domain.Channel) bool {
	return ch.Publishable() && !ch.CoordinatorOwned()
}
