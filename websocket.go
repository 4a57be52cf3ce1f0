package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// feedMessage is the envelope of every message on the live feed.
type feedMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type feedClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// FeedHub streams decisions, actions and status to WebSocket clients. New
// clients first receive the most recent decisions and actions.
type FeedHub struct {
	commands *Commands
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	clients   map[*feedClient]struct{}
	replay    [][]byte
	maxReplay int
}

// NewFeedHub keeps up to replay messages for new clients. commands, if not
// nil, answers {"type":"status"} requests.
func NewFeedHub(commands *Commands, replay int) *FeedHub {
	if replay <= 0 {
		replay = 100
	}
	return &FeedHub{
		commands:  commands,
		clients:   make(map[*feedClient]struct{}),
		replay:    make([][]byte, 0, replay),
		maxReplay: replay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ClientCount returns the number of connected clients.
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Feed WebSocket: upgrade failed: %v", err)
		return
	}

	c := &feedClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.maxReplay+64),
	}
	h.register(c)
	if DebugMode {
		log.Printf("Feed WebSocket: client %s connected from %s", c.id, r.RemoteAddr)
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *FeedHub) register(c *feedClient) {
	hello, _ := json.Marshal(feedMessage{Type: "hello", Data: map[string]string{"client_id": c.id}})

	h.mu.Lock()
	defer h.mu.Unlock()
	c.send <- hello
	for _, msg := range h.replay {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
}

func (h *FeedHub) unregister(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *FeedHub) readPump(c *feedClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		if DebugMode {
			log.Printf("Feed WebSocket: client %s disconnected", c.id)
		}
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Feed WebSocket: read error: %v", err)
			}
			return
		}

		var req feedMessage
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		switch req.Type {
		case "ping":
			h.sendTo(c, feedMessage{Type: "pong"})
		case "status":
			if h.commands != nil {
				h.sendTo(c, feedMessage{Type: "status", Data: h.commands.GetStatus(GetStatusRequest{})})
			}
		}
	}
}

func (h *FeedHub) writePump(c *feedClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *FeedHub) sendTo(c *feedClient, msg feedMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Feed WebSocket: failed to marshal message: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// broadcast sends msg to every client. Slow clients miss messages rather
// than stall the relay. With keep set the message is also replayed to
// clients that connect later.
func (h *FeedHub) broadcast(msg feedMessage, keep bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Feed WebSocket: failed to marshal message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if keep {
		if len(h.replay) == h.maxReplay {
			copy(h.replay, h.replay[1:])
			h.replay = h.replay[:len(h.replay)-1]
		}
		h.replay = append(h.replay, b)
	}
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			if DebugMode {
				log.Printf("Feed WebSocket: client %s is slow, message dropped", c.id)
			}
		}
	}
}

func (h *FeedHub) Decision(ev DecisionEvent) {
	h.broadcast(feedMessage{Type: "decision", Data: ev}, true)
}

func (h *FeedHub) Status(st *wsjtx.Status) {
	h.broadcast(feedMessage{Type: "status", Data: st}, false)
}

func (h *FeedHub) Action(a qso.Action) {
	h.broadcast(feedMessage{Type: "action", Data: newActionEvent(a, time.Now())}, true)
}

func (h *FeedHub) Dropped(string, error) {}
