package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/shaunagostinho/locationhelper/internal/location"
)

// wsRequest is a client-initiated WebSocket message.
type wsRequest struct {
	Op        string  `json:"op"` // "fixed", "viable" or "cancel"
	ID        string  `json:"id"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	TimeoutMs int     `json:"timeoutMs,omitempty"`
}

// wsReply answers one wsRequest with a Result, a cancellation or an error.
type wsReply struct {
	ID        string      `json:"id"`
	Result    *ResultBody `json:"result,omitempty"`
	Cancelled bool        `json:"cancelled,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	pending map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func (c *wsClient) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		// Client too slow, skip
	}
}

func (c *wsClient) reply(r wsReply) {
	if data, err := json.Marshal(r); err == nil {
		c.enqueue(data)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:    conn,
		send:    make(chan []byte, 64),
		pending: make(map[string]context.CancelFunc),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Info("ws client connected", "clients", n)

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Acquisitions end with the connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		client.wg.Wait()

		s.clientsMu.Lock()
		delete(s.clients, client)
		n := len(s.clients)
		s.clientsMu.Unlock()
		close(client.send)
		s.log.Info("ws client disconnected", "clients", n)
	}()

	d := s.store.Get()
	if data, err := json.Marshal(Frame{Settings: &d, Stamp: time.Now().UnixMilli()}); err == nil {
		client.enqueue(data)
	}

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.RateLimit), max(s.cfg.Server.RateBurst, 1))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			client.reply(wsReply{Error: "bad message: " + err.Error()})
			continue
		}
		if s.cfg.Server.RateLimit > 0 && !limiter.Allow() {
			client.reply(wsReply{ID: req.ID, Error: "rate limited"})
			continue
		}
		s.dispatchWS(ctx, client, req)
	}
}

func (s *Server) dispatchWS(ctx context.Context, c *wsClient, req wsRequest) {
	switch req.Op {
	case "cancel":
		c.mu.Lock()
		cancel, ok := c.pending[req.ID]
		c.mu.Unlock()
		if ok {
			cancel()
		} else {
			c.reply(wsReply{ID: req.ID, Error: "unknown id"})
		}
	case "fixed", "viable":
		if req.ID == "" {
			c.reply(wsReply{Error: "missing id"})
			return
		}
		var acqCtx context.Context
		var cancel context.CancelFunc
		if req.TimeoutMs > 0 {
			acqCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		} else {
			acqCtx, cancel = context.WithCancel(ctx)
		}

		c.mu.Lock()
		if _, dup := c.pending[req.ID]; dup {
			c.mu.Unlock()
			cancel()
			c.reply(wsReply{ID: req.ID, Error: "duplicate id"})
			return
		}
		c.pending[req.ID] = cancel
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.pending, req.ID)
				c.mu.Unlock()
				cancel()
			}()
			c.reply(s.acquire(acqCtx, req))
		}()
	default:
		c.reply(wsReply{ID: req.ID, Error: "unknown op " + req.Op})
	}
}

func (s *Server) acquire(ctx context.Context, req wsRequest) wsReply {
	var (
		res location.Result
		err error
	)
	if req.Op == "fixed" {
		res, err = s.acquirer.FixedLocation(ctx)
	} else {
		accuracy := req.Accuracy
		if accuracy == 0 {
			accuracy = s.cfg.DefaultAccuracy()
		}
		res, err = s.acquirer.ViableLocation(ctx, accuracy)
	}
	if err != nil {
		return wsReply{ID: req.ID, Cancelled: true, Error: err.Error()}
	}
	body, err := s.encodeResult(res)
	if err != nil {
		s.log.Error("encode result", "id", req.ID, "error", err)
		return wsReply{ID: req.ID, Error: err.Error()}
	}
	return wsReply{ID: req.ID, Result: &body}
}
