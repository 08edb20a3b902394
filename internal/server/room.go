package server

import (
	"fmt"
	"log"
	"sync"

	"slices"

	"github.com/google/uuid"
	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/types"
)

type exitReq struct {
	// done receives whether the room actually exited. A nil done means
	// the server is shutting down and the room must exit unconditionally.
	done chan bool
}

type member struct {
	user   types.User
	client *Client
}

// Room owns the membership, video state and chat history for one
// session. All mutations happen on the room's own goroutine, which
// consumes the buffered channels below; stateLock only publishes reads
// to the HTTP query surface.
type Room struct {
	id            string
	cs            *SyncServer
	log           *log.Logger
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	exit          chan exitReq
	done          chan struct{}

	stateLock  sync.RWMutex
	members    map[string]*member
	joinOrder  []string
	videoState types.VideoState
	history    []types.ChatMessage
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)

	for {
		select {
		case join := <-r.joinChan:
			r.handleEvent(func() { r.handleJoin(join) })
		case leaveMsg := <-r.leaveChan:
			r.handleEvent(func() { r.handleLeave(leaveMsg) })
		case msg := <-r.clientMsgChan:
			r.handleEvent(func() {
				switch {
				case msg.Video != nil:
					r.handleVideo(msg)
				case msg.Chat != nil:
					r.handleChat(msg)
				case msg.Media != nil:
					r.handleMedia(msg)
				}
			})
		case e := <-r.exit:
			if r.handleExit(e) {
				return
			}
		}
	}
}

// handleEvent isolates one event: a fault is logged and the event
// dropped without taking down the room goroutine.
func (r *Room) handleEvent(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			r.log.Printf("panic handling event in room %q: %v", r.id, err)
		}
	}()

	fn()
}

func (r *Room) handleJoin(join *ClientMessage) {
	c := join.client

	if !c.trySetRoom(r) {
		// duplicate join from a connection already in a room
		r.unloadIfEmpty()
		return
	}

	r.stateLock.Lock()
	if len(r.members) >= r.cs.capacity {
		r.stateLock.Unlock()
		c.clearRoom(r.id)
		c.queueMessage(ErrRoomFull(join.Id))
		r.unloadIfEmpty()
		return
	}

	user := types.User{
		Id:     c.id,
		Name:   truncate(join.Join.UserName, config.DefaultMaxNameLength),
		IsHost: len(r.members) == 0,
	}
	r.members[c.id] = &member{user: user, client: c}
	r.joinOrder = append(r.joinOrder, c.id)
	history := slices.Clone(r.history)
	r.stateLock.Unlock()

	r.cs.stats.Incr(stats.TotalJoins)

	// the joiner gets the backlog, everyone else learns about the joiner
	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: join.Id, Timestamp: Now()},
		ChatHistory: &ChatHistory{RoomId: r.id, Messages: history},
	})

	r.broadcast(&ServerMessage{
		UserJoined: &user,
		SkipClient: c,
	})

	r.broadcastRoomUsers()
	r.postSystemMessage(fmt.Sprintf("%s joined the room", user.Name))

	r.log.Printf("user %q joined room %q", user.Name, r.id)
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client

	r.stateLock.Lock()
	m, ok := r.members[c.id]
	if !ok {
		// stale leave for a connection that already departed
		r.stateLock.Unlock()
		return
	}

	delete(r.members, c.id)
	if i := slices.Index(r.joinOrder, c.id); i >= 0 {
		r.joinOrder = slices.Delete(r.joinOrder, i, i+1)
	}

	// host migration: the earliest-joined remaining member takes over
	if m.user.IsHost && len(r.joinOrder) > 0 {
		r.members[r.joinOrder[0]].user.IsHost = true
	}
	empty := len(r.members) == 0
	r.stateLock.Unlock()

	c.clearRoom(r.id)

	if empty {
		r.requestUnload()
		return
	}

	r.broadcast(&ServerMessage{
		UserLeft: &UserLeft{RoomId: r.id, UserId: c.id},
	})
	r.broadcastRoomUsers()
	r.postSystemMessage(fmt.Sprintf("%s left the room", m.user.Name))

	r.log.Printf("user %q left room %q", m.user.Name, r.id)
}

func (r *Room) handleVideo(msg *ClientMessage) {
	r.stateLock.Lock()
	if _, ok := r.members[msg.client.id]; !ok {
		r.stateLock.Unlock()
		return
	}
	r.videoState = msg.Video.VideoState
	r.stateLock.Unlock()

	r.broadcast(&ServerMessage{
		Video: &VideoBroadcast{
			RoomId:     r.id,
			UserId:     msg.client.id,
			VideoState: msg.Video.VideoState,
		},
		SkipClient: msg.client,
	})
}

func (r *Room) handleChat(msg *ClientMessage) {
	r.stateLock.Lock()
	m, ok := r.members[msg.client.id]
	if !ok {
		r.stateLock.Unlock()
		return
	}

	chatMsg := types.ChatMessage{
		Id:        uuid.NewString(),
		UserId:    msg.client.id,
		UserName:  m.user.Name,
		Message:   truncate(msg.Chat.Message, config.DefaultMaxMessageLength),
		Timestamp: msg.Timestamp,
	}
	r.appendHistory(chatMsg)
	r.stateLock.Unlock()

	r.cs.stats.Incr(stats.TotalMessages)

	// the sender receives the canonical echo along with everyone else
	r.broadcast(&ServerMessage{Chat: &chatMsg})
}

func (r *Room) handleMedia(msg *ClientMessage) {
	r.stateLock.Lock()
	m, ok := r.members[msg.client.id]
	if !ok {
		r.stateLock.Unlock()
		return
	}
	m.user.IsCameraOn = msg.Media.IsCameraOn
	m.user.IsMicOn = msg.Media.IsMicOn
	r.stateLock.Unlock()

	r.broadcastRoomUsers()
}

// postSystemMessage appends a server-generated chat line to the history
// and fans it out like any other message.
func (r *Room) postSystemMessage(text string) {
	chatMsg := types.ChatMessage{
		Id:        uuid.NewString(),
		UserId:    types.SystemUserId,
		UserName:  types.SystemUserId,
		Message:   text,
		Timestamp: Now(),
	}

	r.stateLock.Lock()
	r.appendHistory(chatMsg)
	r.stateLock.Unlock()

	r.broadcast(&ServerMessage{Chat: &chatMsg})
}

// appendHistory adds a message, evicting from the front once the bound
// is reached. Callers must hold stateLock.
func (r *Room) appendHistory(msg types.ChatMessage) {
	r.history = append(r.history, msg)
	if n := len(r.history) - r.cs.historySize; n > 0 {
		r.history = slices.Delete(r.history, 0, n)
	}
}

// unloadIfEmpty covers rejected joins that may have left a freshly
// created room without any member.
func (r *Room) unloadIfEmpty() {
	r.stateLock.RLock()
	empty := len(r.members) == 0
	r.stateLock.RUnlock()

	if empty {
		r.requestUnload()
	}
}

func (r *Room) requestUnload() {
	select {
	case r.cs.unloadRoomChan <- r.id:
	default:
		r.log.Printf("unload channel full for room %q", r.id)
	}
}

// handleExit decides whether the room really exits. The dispatcher may
// probe a room that regained a member after requesting unload; in that
// case the room declines and keeps running. Pending joins are handed
// back to the dispatcher so the teardown race never drops them.
func (r *Room) handleExit(e exitReq) bool {
	r.stateLock.RLock()
	n := len(r.members)
	r.stateLock.RUnlock()

	if e.done != nil && n > 0 {
		e.done <- false
		return false
	}

	r.log.Printf("room %q is exiting", r.id)

	for {
		select {
		case join := <-r.joinChan:
			r.cs.redispatchJoin(join)
			continue
		default:
		}
		break
	}

	r.stateLock.Lock()
	for _, m := range r.members {
		m.client.clearRoom(r.id)
	}
	r.members = make(map[string]*member)
	r.joinOrder = nil
	r.stateLock.Unlock()

	if e.done != nil {
		e.done <- true
	}
	close(r.done)
	return true
}

func (r *Room) broadcastRoomUsers() {
	r.broadcast(&ServerMessage{
		RoomUsers: &RoomUsers{RoomId: r.id, Users: r.roster()},
	})
}

// roster returns the member list in join order.
func (r *Room) roster() []types.User {
	r.stateLock.RLock()
	defer r.stateLock.RUnlock()

	users := make([]types.User, 0, len(r.members))
	for _, id := range r.joinOrder {
		users = append(users, r.members[id].user)
	}
	return users
}

func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	r.stateLock.RLock()
	defer r.stateLock.RUnlock()

	for _, m := range r.members {
		if m.client == msg.SkipClient {
			continue
		}

		m.client.queueMessage(msg)
	}
}

// Info returns the lookup-API view of the room. Safe to call from any
// goroutine.
func (r *Room) Info() types.RoomInfo {
	r.stateLock.RLock()
	defer r.stateLock.RUnlock()

	users := make([]types.RoomUser, 0, len(r.members))
	for _, id := range r.joinOrder {
		u := r.members[id].user
		users = append(users, types.RoomUser{Name: u.Name, IsHost: u.IsHost})
	}

	return types.RoomInfo{
		Id:        r.id,
		UserCount: len(r.members),
		Users:     users,
	}
}

// VideoState returns the current playback snapshot.
func (r *Room) VideoState() types.VideoState {
	r.stateLock.RLock()
	defer r.stateLock.RUnlock()
	return r.videoState
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
