package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-watchparty/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope for frames received from a client.
// Exactly one of the event fields is expected to be set.
type ClientMessage struct {
	BaseMessage
	Join   *Join        `json:"join,omitempty"`
	Leave  *Leave       `json:"leave,omitempty"`
	Video  *VideoUpdate `json:"video,omitempty"`
	Chat   *ChatPublish `json:"chat,omitempty"`
	Media  *MediaUpdate `json:"media,omitempty"`
	client *Client      `json:"-"`
}

type Join struct {
	RoomId   string `json:"roomId"`
	UserName string `json:"userName"`
}

type Leave struct {
	RoomId string `json:"roomId"`
}

type VideoUpdate struct {
	RoomId string `json:"roomId"`
	types.VideoState
}

type ChatPublish struct {
	RoomId  string `json:"roomId"`
	Message string `json:"message"`
}

type MediaUpdate struct {
	RoomId     string `json:"roomId"`
	IsCameraOn bool   `json:"isCameraOn"`
	IsMicOn    bool   `json:"isMicOn"`
}

// ServerMessage is the envelope for frames sent to clients. One event
// field is set per frame; SkipClient excludes a member from a broadcast.
type ServerMessage struct {
	BaseMessage
	Response    *Response          `json:"response,omitempty"`
	RoomUsers   *RoomUsers         `json:"roomUsers,omitempty"`
	ChatHistory *ChatHistory       `json:"chatHistory,omitempty"`
	Chat        *types.ChatMessage `json:"chat,omitempty"`
	UserJoined  *types.User        `json:"userJoined,omitempty"`
	UserLeft    *UserLeft          `json:"userLeft,omitempty"`
	Video       *VideoBroadcast    `json:"video,omitempty"`
	SkipClient  *Client            `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

type RoomUsers struct {
	RoomId string       `json:"roomId"`
	Users  []types.User `json:"users"`
}

type ChatHistory struct {
	RoomId   string              `json:"roomId"`
	Messages []types.ChatMessage `json:"messages"`
}

type UserLeft struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
}

type VideoBroadcast struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
	types.VideoState
}

func ErrInvalidJoin(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "room id and user name are required",
		},
	}
}

func ErrRoomFull(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusConflict,
			Error:        "room is full",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
