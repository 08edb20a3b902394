package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection. It is joined to at most one room
// at a time; a nil room pointer means the connection is still in its
// pre-join state and every event except a join is ignored. A transport
// close has the same effect as an explicit leave.
type Client struct {
	id         string
	conn       *websocket.Conn
	syncServer *SyncServer
	log        *log.Logger
	send       chan *ServerMessage
	room       *Room
	roomLock   sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(id string, conn *websocket.Conn, cs *SyncServer, l *log.Logger) *Client {
	return &Client{
		id:         id,
		conn:       conn,
		syncServer: cs,
		log:        l,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		c.dispatch(&msg)
	}
}

// dispatch applies the connection state machine: joins are routed to
// the registry when unjoined, room-scoped events are routed to the
// joined room, everything else is dropped as a teardown-race no-op.
func (c *Client) dispatch(msg *ClientMessage) {
	msg.client = c
	msg.Timestamp = Now()

	if msg.Join != nil {
		c.joinRoom(msg)
		return
	}

	r := c.getRoom()
	if r == nil {
		return
	}

	switch {
	case msg.Leave != nil:
		if msg.Leave.RoomId != r.id {
			return
		}
		select {
		case r.leaveChan <- msg:
		default:
			c.log.Printf("leave channel full for room %q", r.id)
			c.queueMessage(ErrServiceUnavailable(msg.Id))
		}
	case msg.Video != nil, msg.Chat != nil, msg.Media != nil:
		if roomIdOf(msg) != r.id {
			return
		}
		select {
		case r.clientMsgChan <- msg:
		default:
			c.log.Printf("message channel full for room %q", r.id)
			c.queueMessage(ErrServiceUnavailable(msg.Id))
		}
	}
}

func roomIdOf(msg *ClientMessage) string {
	switch {
	case msg.Video != nil:
		return msg.Video.RoomId
	case msg.Chat != nil:
		return msg.Chat.RoomId
	case msg.Media != nil:
		return msg.Media.RoomId
	}
	return ""
}

func (c *Client) joinRoom(msg *ClientMessage) {
	if msg.Join.RoomId == "" || msg.Join.UserName == "" {
		c.queueMessage(ErrInvalidJoin(msg.Id))
		return
	}

	if c.getRoom() != nil {
		// already joined to a room
		return
	}

	select {
	case c.syncServer.joinChan <- msg:
	default:
		c.log.Printf("join channel full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	if r := c.getRoom(); r != nil {
		select {
		case r.leaveChan <- &ClientMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Leave:       &Leave{RoomId: r.id},
			client:      c,
		}:
		default:
			c.log.Printf("leave channel full for room %q during cleanup", r.id)
		}
	}

	select {
	case c.syncServer.deRegisterChan <- c:
	case <-c.syncServer.done:
	}

	c.stopClient()
}

// trySetRoom claims the connection for a room. It fails if the
// connection is already joined elsewhere, which covers duplicate join
// frames racing through the registry.
func (c *Client) trySetRoom(r *Room) bool {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room != nil {
		return false
	}
	c.room = r
	return true
}

// clearRoom resets the joined room, but only if it still matches the
// given id, so a late clear cannot clobber a newer join.
func (c *Client) clearRoom(id string) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room != nil && c.room.id == id {
		c.room = nil
	}
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
