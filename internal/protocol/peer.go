package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
)

const KindReaction Kind = "reaction"

// PeerFrame travels over the direct data channel between two clients.
// Type is message_received or reaction.
type PeerFrame struct {
	Type      Kind            `json:"type"`
	Message   *domain.Message `json:"message,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Emoji     string          `json:"emoji,omitempty"`
	UserID    domain.UserID   `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
}

func MessageFrame(m domain.Message) PeerFrame {
	return PeerFrame{Type: KindMessageReceived, Message: &m}
}

func ReactionFrame(messageID string, r domain.Reaction) PeerFrame {
	return PeerFrame{
		Type:      KindReaction,
		MessageID: messageID,
		Emoji:     r.Emoji,
		UserID:    r.UserID,
		Username:  r.Username,
	}
}

func DecodePeerFrame(data []byte) (PeerFrame, error) {
	var f PeerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return PeerFrame{}, fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	switch f.Type {
	case KindMessageReceived:
		if f.Message == nil || f.Message.ID == "" {
			return PeerFrame{}, fmt.Errorf("%w: peer frame without message id", domain.ErrMalformedInput)
		}
	case KindReaction:
		if f.MessageID == "" || f.Emoji == "" {
			return PeerFrame{}, fmt.Errorf("%w: incomplete reaction", domain.ErrMalformedInput)
		}
	default:
		return PeerFrame{}, fmt.Errorf("%w: unknown peer frame %q", domain.ErrMalformedInput, f.Type)
	}
	return f, nil
}
