package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/physioconnect/consult/backend/internal/model/consultation"
)

func TestDecodeJoinSession(t *testing.T) {
	req := require.New(t)
	frame := []byte(`{"type":"join-session","sessionId":"PHY-1","userName":"Dr. A","userType":"doctor"}`)

	msg, err := Decode(frame)
	req.NoError(err)
	join, ok := msg.(JoinSession)
	req.True(ok)
	req.Equal("PHY-1", join.SessionID)
	req.Equal("Dr. A", join.UserName)
	req.Equal("doctor", join.UserType)
}

func TestDecodeRelayedKeepsFrameVerbatim(t *testing.T) {
	req := require.New(t)
	for _, kind := range []Type{TypeOffer, TypeAnswer, TypeICECandidate, TypePostureData} {
		frame := []byte(`{"type":"` + string(kind) + `","sessionId":"PHY-1","payload":{"sdp":"v=0","n":[1,2]}}`)

		msg, err := Decode(frame)
		req.NoError(err)
		relayed, ok := msg.(Relayed)
		req.True(ok)
		req.Equal(kind, relayed.FrameType())
		req.Equal(string(frame), string(relayed.Raw))
	}
}

func TestDecodeRelayedIgnoresFieldTypes(t *testing.T) {
	req := require.New(t)
	for _, sessionID := range []string{`42`, `{"id":"PHY-1"}`, `["PHY-1"]`, `null`} {
		frame := []byte(`{"type":"webrtc-ice-candidate","sessionId":` + sessionID + `,"candidate":{"candidate":"a=1","sdpMLineIndex":0}}`)

		msg, err := Decode(frame)
		req.NoError(err, sessionID)
		relayed, ok := msg.(Relayed)
		req.True(ok)
		req.Equal(string(frame), string(relayed.Raw))
	}
}

func TestDecodeJoinSessionAcceptsNonStringFields(t *testing.T) {
	req := require.New(t)
	frame := []byte(`{"type":"join-session","sessionId":1001,"userName":{"first":"Bob"},"userType":null}`)

	msg, err := Decode(frame)
	req.NoError(err)
	join, ok := msg.(JoinSession)
	req.True(ok)
	req.Equal("1001", join.SessionID)
	req.Equal(`{"first":"Bob"}`, join.UserName)
	req.Empty(join.UserType)
}

func TestDecodeChatMessageIgnoresSessionID(t *testing.T) {
	req := require.New(t)
	frame := []byte(`{"type":"chat-message","sessionId":7,"senderName":"Bob","senderType":"patient","message":"hi"}`)

	msg, err := Decode(frame)
	req.NoError(err)
	chat, ok := msg.(ChatMessage)
	req.True(ok)
	req.Equal("Bob", chat.SenderName)
	req.Equal("hi", chat.Message)

	_, err = Decode([]byte(`{"type":"chat-message","senderName":5,"senderType":"patient","message":"hi"}`))
	req.ErrorIs(err, ErrMalformed)
}

func TestDecodeRejectsMalformedAndUnknown(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"type":42}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"type":"screen-share","sessionId":"PHY-1"}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestChatBroadcastFlattensStoredMessage(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	out := NewChatBroadcast(consultation.Message{
		ID:         "m-1",
		SessionID:  "PHY-1",
		SenderName: "Bob",
		SenderType: consultation.RolePatient,
		Message:    "hi",
		Timestamp:  at,
	})

	data, err := json.Marshal(out)
	req.NoError(err)

	var decoded map[string]any
	req.NoError(json.Unmarshal(data, &decoded))
	req.Equal("chat-message", decoded["type"])
	req.Equal("m-1", decoded["id"])
	req.Equal("Bob", decoded["senderName"])
	req.Equal("patient", decoded["senderType"])
	req.Equal("hi", decoded["message"])
	req.Equal(at.Format(time.RFC3339Nano), decoded["timestamp"])
}
