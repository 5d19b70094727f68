package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChat(t *testing.T) {
	raw := []byte(`{"type":"chat","clientId":"v1","message":"Hi","id":"msg-1","timestamp":"2025-01-01T00:00:00Z","name":"Ann"}`)

	payload, err := Decode(raw)
	require.NoError(t, err)

	chat, ok := payload.(*Chat)
	require.True(t, ok)
	assert.Equal(t, "v1", chat.ClientID)
	assert.Equal(t, "Hi", chat.Message)
	assert.Equal(t, "msg-1", chat.ID)
	assert.Equal(t, "Ann", chat.Name)
}

func TestDecodeAdminMessage(t *testing.T) {
	raw := []byte(`{"type":"admin_message","targetClientId":"v1","message":"Hello","id":"a-1","timestamp":"2025-01-01T00:00:00Z"}`)

	payload, err := Decode(raw)
	require.NoError(t, err)

	msg, ok := payload.(*AdminMessage)
	require.True(t, ok)
	assert.Equal(t, "v1", msg.TargetClientID)
	assert.Equal(t, "Hello", msg.Message)
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	_, err := Decode([]byte("not json at all"))

	var malformed *MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"message":"hi"}`))

	var malformed *MalformedFrameError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Error(), "missing type")
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"launch_missiles"}`))

	var malformed *MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeRejectsChatWithoutID(t *testing.T) {
	_, err := Decode([]byte(`{"type":"chat","clientId":"v1","message":"Hi"}`))

	var malformed *MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeRejectsAdminMessageWithoutTarget(t *testing.T) {
	_, err := Decode([]byte(`{"type":"admin_message","message":"Hello","id":"a-1"}`))

	var malformed *MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeRejectsPayloadTypeMismatch(t *testing.T) {
	// typing must be a bool, not a string
	_, err := Decode([]byte(`{"type":"typing","targetClientId":"v1","typing":"yes"}`))

	var malformed *MalformedFrameError
	require.ErrorAs(t, err, &malformed)
}

func TestEncodeSetsTypeField(t *testing.T) {
	raw, err := Encode(&ClientID{ClientID: "visitor-42"})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "client_id", fields["type"])
	assert.Equal(t, "visitor-42", fields["clientId"])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := []Payload{
		&Identify{IsAdmin: true, Name: "Support"},
		&Chat{ClientID: "v1", Message: "Hi", ID: "msg-1", Timestamp: "2025-01-01T00:00:00Z"},
		&AdminMessage{TargetClientID: "v1", Message: "Hello", ID: "a-1"},
		&Typing{TargetClientID: "v1", Typing: true},
		&GetHistory{ClientID: "v1"},
		&DeleteChat{ClientID: "v1"},
		&ChatDeleted{ClientID: "v1", Success: true},
		&System{Message: "operator joined"},
	}

	for _, p := range payloads {
		raw, err := Encode(p)
		require.NoError(t, err, "encode %s", p.FrameType())

		decoded, err := Decode(raw)
		require.NoError(t, err, "decode %s", p.FrameType())
		assert.Equal(t, p, decoded)
	}
}

func TestFrameTypeIsValid(t *testing.T) {
	assert.True(t, FrameChat.IsValid())
	assert.True(t, FrameAdminNotice.IsValid())
	assert.False(t, FrameType("").IsValid())
	assert.False(t, FrameType("bogus").IsValid())
}
