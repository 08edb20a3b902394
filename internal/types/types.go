package types

import "time"

// User is the wire-visible record for one room member. Its Id is the
// member's connection id, so a user exists only as long as the
// connection that created it.
type User struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	IsHost     bool   `json:"isHost"`
	IsCameraOn bool   `json:"isCameraOn"`
	IsMicOn    bool   `json:"isMicOn"`
}

// VideoState is the shared playback snapshot for a room. Updates replace
// the whole value, there is no per-field merge.
type VideoState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Volume      float64 `json:"volume"`
}

// DefaultVideoState is the state a freshly created room starts with.
func DefaultVideoState() VideoState {
	return VideoState{Volume: 1}
}

// SystemUserId is the reserved sender id for server-generated chat
// messages such as join and leave announcements.
const SystemUserId = "system"

type ChatMessage struct {
	Id        string    `json:"id"`
	UserId    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomUser is the reduced member view returned by the room lookup API.
type RoomUser struct {
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

type RoomInfo struct {
	Id        string     `json:"id"`
	UserCount int        `json:"userCount"`
	Users     []RoomUser `json:"users"`
}
