package server

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-watchparty/internal/config"
	"github.com/npezzotti/go-watchparty/internal/stats"
	"github.com/npezzotti/go-watchparty/internal/types"
)

// SyncServer is the process-wide room registry. Its Run loop is the
// single dispatcher that resolves or creates rooms for joins and
// confirms room teardown, so no two joins can both observe a brand-new
// room as empty. Per-room work happens on each room's own goroutine.
type SyncServer struct {
	log            *log.Logger
	stats          stats.StatsProvider
	capacity       int
	historySize    int
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	stop           chan struct{}
	done           chan struct{}
}

func NewSyncServer(logger *log.Logger, su stats.StatsProvider, cfg *config.Config) (*SyncServer, error) {
	cs := &SyncServer{
		log:            logger,
		stats:          su,
		capacity:       cfg.RoomCapacity,
		historySize:    cfg.ChatHistorySize,
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string, 64),
		rooms:          make(map[string]*Room),
		clients:        make(map[*Client]struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	su.RegisterMetric(stats.ActiveRooms)
	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.TotalMessages)
	su.RegisterMetric(stats.TotalJoins)

	return cs, nil
}

func (cs *SyncServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.registerChan:
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.removeClient(client)
		case id := <-cs.unloadRoomChan:
			cs.handleUnload(id)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			cs.roomsLock.Lock()
			for _, r := range cs.rooms {
				close(r.exit)
				<-r.done
			}
			cs.rooms = make(map[string]*Room)
			cs.roomsLock.Unlock()

			close(cs.done)
			return
		}
	}
}

// handleJoin routes a join to its room, creating the room on first use.
// The join is queued on the new room's channel before the dispatcher
// handles any other event, which makes creation and first insertion one
// logical step.
func (cs *SyncServer) handleJoin(joinMsg *ClientMessage) {
	cs.roomsLock.RLock()
	room, ok := cs.rooms[joinMsg.Join.RoomId]
	cs.roomsLock.RUnlock()

	if !ok {
		room = &Room{
			id:            joinMsg.Join.RoomId,
			cs:            cs,
			log:           cs.log,
			joinChan:      make(chan *ClientMessage, 256),
			leaveChan:     make(chan *ClientMessage, 256),
			clientMsgChan: make(chan *ClientMessage, 256),
			exit:          make(chan exitReq),
			done:          make(chan struct{}),
			members:       make(map[string]*member),
			videoState:    types.DefaultVideoState(),
		}

		cs.roomsLock.Lock()
		cs.rooms[room.id] = room
		cs.roomsLock.Unlock()

		cs.stats.Incr(stats.ActiveRooms)
		go room.start()
	}

	select {
	case room.joinChan <- joinMsg:
	default:
		cs.log.Printf("join channel full on room %q", room.id)
		joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
	}
}

// handleUnload probes a room that reported itself empty. The room may
// have regained a member since, in which case it declines and stays
// registered. Idempotent for rooms already removed.
func (cs *SyncServer) handleUnload(id string) {
	cs.roomsLock.RLock()
	r, ok := cs.rooms[id]
	cs.roomsLock.RUnlock()
	if !ok {
		return
	}

	done := make(chan bool)
	r.exit <- exitReq{done: done}
	if !<-done {
		return
	}

	cs.roomsLock.Lock()
	delete(cs.rooms, id)
	cs.roomsLock.Unlock()

	cs.stats.Decr(stats.ActiveRooms)
	cs.log.Printf("removed room %q", id)
}

// redispatchJoin requeues a join that raced a room teardown; the
// dispatcher will recreate the room for it.
func (cs *SyncServer) redispatchJoin(joinMsg *ClientMessage) {
	select {
	case cs.joinChan <- joinMsg:
	default:
		joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
	}
}

func (cs *SyncServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
}

func (cs *SyncServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveConnections)
}

// ServeConn attaches a websocket connection to the sync server and
// starts its read and write pumps. The connection stays unjoined until
// it sends a valid join frame.
func (cs *SyncServer) ServeConn(id string, conn *websocket.Conn) {
	client := NewClient(id, conn, cs, cs.log)
	cs.registerChan <- client

	go client.Write()
	go client.Read()
}

// RoomInfo is the read-only lookup used by the HTTP API.
func (cs *SyncServer) RoomInfo(id string) (types.RoomInfo, bool) {
	cs.roomsLock.RLock()
	r, ok := cs.rooms[id]
	cs.roomsLock.RUnlock()
	if !ok {
		return types.RoomInfo{}, false
	}

	return r.Info(), true
}

// RoomCount and ConnectionCount feed the liveness endpoint.
func (cs *SyncServer) RoomCount() int {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()
	return len(cs.rooms)
}

func (cs *SyncServer) ConnectionCount() int {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	return len(cs.clients)
}

func (cs *SyncServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
