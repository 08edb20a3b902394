package config

import "fmt"

const (
	// DefaultRoomCapacity is the maximum number of members per room.
	DefaultRoomCapacity = 10
	// DefaultChatHistorySize is the number of chat messages retained per room.
	DefaultChatHistorySize = 100
	// DefaultMaxNameLength is the display name limit; longer names are truncated.
	DefaultMaxNameLength = 20
	// DefaultMaxMessageLength is the chat message limit; longer messages are truncated.
	DefaultMaxMessageLength = 200
)

type Config struct {
	ServerAddr      string
	AllowedOrigins  []string
	RoomCapacity    int
	ChatHistorySize int
}

func NewConfig(serverAddr string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	return &Config{
		ServerAddr:      serverAddr,
		AllowedOrigins:  allowedOrigins,
		RoomCapacity:    DefaultRoomCapacity,
		ChatHistorySize: DefaultChatHistorySize,
	}, nil
}
