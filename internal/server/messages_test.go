package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/npezzotti/go-watchparty/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors(t *testing.T) {
	tcases := []struct {
		name     string
		msg      *ServerMessage
		code     int
		errorMsg string
	}{
		{
			name:     "invalid join",
			msg:      ErrInvalidJoin(1),
			code:     http.StatusBadRequest,
			errorMsg: "room id and user name are required",
		},
		{
			name:     "room full",
			msg:      ErrRoomFull(1),
			code:     http.StatusConflict,
			errorMsg: "room is full",
		},
		{
			name:     "service unavailable",
			msg:      ErrServiceUnavailable(1),
			code:     http.StatusServiceUnavailable,
			errorMsg: "service unavailable",
		},
		{
			name:     "invalid message",
			msg:      ErrInvalidMessage(1),
			code:     http.StatusBadRequest,
			errorMsg: "invalid message format",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			require.NotNil(t, tc.msg.Response, "expected a response payload")
			assert.Equal(t, tc.code, tc.msg.Response.ResponseCode, "expected response code to match")
			assert.Equal(t, tc.errorMsg, tc.msg.Response.Error, "expected error message to match")
			assert.Equal(t, 1, tc.msg.Id, "expected message id to be carried through")
		})
	}
}

func TestErrInvalidMessage_noId(t *testing.T) {
	msg := ErrInvalidMessage(-1)
	assert.Zero(t, msg.Id, "expected no id when the frame could not be parsed")
}

func TestServerMessage_marshalOmitsUnsetEvents(t *testing.T) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Chat: &types.ChatMessage{
			Id:       "msg-1",
			UserId:   "conn-a",
			UserName: "alice",
			Message:  "hello",
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err, "expected message to marshal")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), "expected marshalled frame to be valid JSON")

	assert.Contains(t, decoded, "chat", "expected the set event field to be present")
	assert.NotContains(t, decoded, "roomUsers", "expected unset event fields to be omitted")
	assert.NotContains(t, decoded, "video", "expected unset event fields to be omitted")
	assert.NotContains(t, decoded, "response", "expected unset event fields to be omitted")
}

func TestClientMessage_unmarshal(t *testing.T) {
	raw := []byte(`{"id":3,"video":{"roomId":"movie-night","isPlaying":true,"currentTime":42.5,"duration":3600,"volume":0.8}}`)

	var msg ClientMessage
	require.NoError(t, json.Unmarshal(raw, &msg), "expected frame to parse")

	require.NotNil(t, msg.Video, "expected video event to be set")
	assert.Equal(t, "movie-night", msg.Video.RoomId, "expected room id to parse")
	assert.True(t, msg.Video.IsPlaying, "expected isPlaying to parse")
	assert.Equal(t, 42.5, msg.Video.CurrentTime, "expected currentTime to parse")
	assert.Nil(t, msg.Join, "expected other events to stay unset")
}
