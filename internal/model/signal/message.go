// Package signal defines the JSON frames exchanged over the consultation
// WebSocket. Inbound frames form a closed set; Decode rejects anything else.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
)

// Type is the discriminator carried in every frame's "type" field.
type Type string

const (
	TypeJoinSession  Type = "join-session"
	TypeOffer        Type = "webrtc-offer"
	TypeAnswer       Type = "webrtc-answer"
	TypeICECandidate Type = "webrtc-ice-candidate"
	TypeChatMessage  Type = "chat-message"
	TypePostureData  Type = "posture-data"

	TypeUserJoined Type = "user-joined"
	TypeUserLeft   Type = "user-left"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown frame type")
)

// Inbound is implemented by every frame a client may send.
type Inbound interface {
	FrameType() Type
}

// JoinSession binds the sending connection to a session.
type JoinSession struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	UserType  string `json:"userType"`
}

func (JoinSession) FrameType() Type { return TypeJoinSession }

// Relayed covers offer, answer, ICE candidate and posture frames. The relay
// never looks inside them; Raw is the frame exactly as received.
type Relayed struct {
	Kind Type
	Raw  json.RawMessage
}

func (r Relayed) FrameType() Type { return r.Kind }

// ChatMessage is a transcript line submitted by a participant. Its session
// is the one the sending connection joined, so any sessionId in the frame
// is not decoded.
type ChatMessage struct {
	SenderName string `json:"senderName"`
	SenderType string `json:"senderType"`
	Message    string `json:"message"`
}

func (ChatMessage) FrameType() Type { return TypeChatMessage }

type header struct {
	Type Type `json:"type"`
}

// joinFields holds any JSON value per field; text converts them.
type joinFields struct {
	SessionID json.RawMessage `json:"sessionId"`
	UserName  json.RawMessage `json:"userName"`
	UserType  json.RawMessage `json:"userType"`
}

// Decode parses a text frame into one of the Inbound variants. Only the
// "type" field is checked for relayed frames.
func Decode(frame []byte) (Inbound, error) {
	var h header
	if err := json.Unmarshal(frame, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch h.Type {
	case TypeJoinSession:
		var f joinFields
		if err := json.Unmarshal(frame, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return JoinSession{
			SessionID: text(f.SessionID),
			UserName:  text(f.UserName),
			UserType:  text(f.UserType),
		}, nil
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	case TypeOffer, TypeAnswer, TypeICECandidate, TypePostureData:
		raw := make(json.RawMessage, len(frame))
		copy(raw, frame)
		return Relayed{Kind: h.Type, Raw: raw}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, h.Type)
	}
}

// text renders a JSON value as a string: strings are unquoted, null and
// absent values are empty, anything else keeps its JSON literal (42 -> "42").
func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// UserJoined is sent to existing members when a connection joins.
type UserJoined struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	UserType  string `json:"userType"`
}

// NewUserJoined builds the notice for a join frame.
func NewUserJoined(sessionID string, join JoinSession) UserJoined {
	return UserJoined{
		Type:      TypeUserJoined,
		SessionID: sessionID,
		UserName:  join.UserName,
		UserType:  join.UserType,
	}
}

// UserLeft is sent to the remaining members when a connection closes.
type UserLeft struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
}

// NewUserLeft builds the departure notice for sessionID.
func NewUserLeft(sessionID string) UserLeft {
	return UserLeft{Type: TypeUserLeft, SessionID: sessionID}
}

// ChatBroadcast carries the stored form of a chat message.
type ChatBroadcast struct {
	Type Type `json:"type"`
	consultation.Message
}

// NewChatBroadcast wraps a persisted message for fan-out.
func NewChatBroadcast(msg consultation.Message) ChatBroadcast {
	return ChatBroadcast{Type: TypeChatMessage, Message: msg}
}
