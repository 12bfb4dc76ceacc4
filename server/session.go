package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/physics"
	"github.com/TFMV/echoes/render"
	"github.com/TFMV/echoes/scheduler"
	"github.com/TFMV/echoes/viewer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	maxMessage   = 4096
	sendBuffered = 16
)

// ClientMessage is sent by the browser over the websocket
type ClientMessage struct {
	Type   string  `json:"type"` // year, pointer, leave or resize
	Key    int     `json:"key,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// ServerMessage is sent to the browser over the websocket
type ServerMessage struct {
	Type      string            `json:"type"` // hello, frame or error
	Session   string            `json:"session,omitempty"`
	Concept   string            `json:"concept,omitempty"`
	TimeRange string            `json:"timeRange,omitempty"`
	Keys      []int             `json:"keys,omitempty"`
	Narrative *models.Narrative `json:"narrative,omitempty"`
	Frame     *render.FrameJSON `json:"frame,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// session is one websocket client with its own view and scheduler. The
// scheduler loop owns the view; control calls are serialized through mu.
type session struct {
	id         string
	concept    string
	conn       *websocket.Conn
	view       *viewer.View
	sched      *scheduler.Scheduler
	ctx        context.Context
	pixelRatio float64
	send       chan []byte
	debug      bool

	mu     sync.Mutex
	closed bool
}

// handleWebSocket opens a live session streaming frames of a concept
func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.conceptFromRequest(w, r)
		if !ok {
			return
		}

		width, err1 := intParam(r, "width", int(s.config.Viewport.Width))
		height, err2 := intParam(r, "height", int(s.config.Viewport.Height))
		if err1 != nil || err2 != nil || width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
			http.Error(w, "invalid width or height", http.StatusBadRequest)
			return
		}

		if s.config.MaxSessions > 0 && s.Sessions() >= s.config.MaxSessions {
			http.Error(w, "Too many sessions", http.StatusServiceUnavailable)
			return
		}

		vp := models.Viewport{Width: float64(width), Height: float64(height)}
		view, err := s.newView(c, vp, physics.RandomPlacement(time.Now().UnixNano()))
		if err != nil {
			http.Error(w, "Error creating view: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("key") != "" {
			key, err := intParam(r, "key", 0)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if _, err := view.SetTimeKey(key); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		conn.SetReadLimit(maxMessage)

		sess := &session{
			id:         uuid.NewString(),
			concept:    strings.ToLower(c.Name),
			conn:       conn,
			view:       view,
			sched:      scheduler.New(view, s.config.FrameInterval),
			ctx:        s.baseCtx,
			pixelRatio: s.config.PixelRatio,
			send:       make(chan []byte, sendBuffered),
			debug:      s.config.DebugMode,
		}

		// Frames are throttled to the stream interval; the loop may tick faster
		var last time.Time
		sess.sched.OnFrame(func(uint64) {
			now := time.Now()
			if now.Sub(last) < s.config.StreamInterval {
				return
			}
			last = now
			frame := render.Encode(view.Frame())
			sess.enqueue(ServerMessage{Type: "frame", Frame: &frame})
		})

		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		log.Printf("Session %s opened for %q", sess.id, c.Name)

		go sess.writePump()

		narrative := c.Narrative
		sess.enqueue(ServerMessage{
			Type:      "hello",
			Session:   sess.id,
			Concept:   c.Name,
			TimeRange: c.TimeRange,
			Keys:      view.Keys(),
			Narrative: &narrative,
		})
		if err := sess.start(); err != nil {
			sess.enqueue(ServerMessage{Type: "error", Error: err.Error()})
		}

		sess.readPump()

		sess.close()
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		log.Printf("Session %s closed after %d frames", sess.id, sess.sched.Frames())
	}
}

// readPump handles client messages until the connection fails
func (sess *session) readPump() {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Session %s read error: %v", sess.id, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.enqueue(ServerMessage{Type: "error", Error: "invalid message: " + err.Error()})
			continue
		}
		if err := sess.handle(msg); err != nil {
			sess.enqueue(ServerMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (sess *session) handle(msg ClientMessage) error {
	if sess.debug {
		log.Printf("Session %s: %+v", sess.id, msg)
	}

	view := sess.view
	switch msg.Type {
	case "year":
		var err error
		restartErr := sess.restart(func() {
			_, err = view.SetTimeKey(msg.Key)
		})
		if err != nil {
			return err
		}
		return restartErr

	case "pointer":
		p := models.Point{X: msg.X, Y: msg.Y}
		sess.post(func() { view.PointerMove(p) })

	case "leave":
		sess.post(view.PointerLeave)

	case "resize":
		if msg.Width < 0 || msg.Height < 0 || msg.Width > maxDimension || msg.Height > maxDimension {
			return fmt.Errorf("invalid size %vx%v", msg.Width, msg.Height)
		}
		vp := models.Viewport{Width: msg.Width, Height: msg.Height}
		return sess.restart(func() {
			// A degenerate viewport keeps the old surface and pauses ticking
			canvas := view.Canvas()
			if !vp.Degenerate() {
				canvas = render.NewSurface(vp, sess.pixelRatio)
			}
			view.Resize(vp, canvas)
		})

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// start begins ticking. It holds mu so a Replace arriving right after
// registration cannot restart the loop while the first Reset runs.
func (sess *session) start() error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil
	}
	return sess.sched.Start(sess.ctx)
}

// restart stops the loop, runs fn and starts again
func (sess *session) restart(fn func()) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil
	}
	return sess.sched.Restart(sess.ctx, fn)
}

// post runs fn on the loop goroutine
func (sess *session) post(fn func()) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	sess.sched.Post(fn)
}

func (sess *session) setTimeline(tl *models.Timeline) {
	err := sess.restart(func() {
		if err := sess.view.SetTimeline(tl); err != nil {
			log.Printf("Session %s kept its timeline: %v", sess.id, err)
		}
	})
	if err != nil {
		log.Printf("Session %s failed to restart: %v", sess.id, err)
	}
}

// enqueue queues a message for the writer, dropping it when the client lags
func (sess *session) enqueue(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding message: %v", err)
		return
	}
	select {
	case sess.send <- data:
	default:
		if sess.debug {
			log.Printf("Session %s: dropped %s message", sess.id, msg.Type)
		}
	}
}

// writePump is the only goroutine writing to the connection
func (sess *session) writePump() {
	failed := false
	for data := range sess.send {
		if failed {
			continue
		}
		sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Session %s write error: %v", sess.id, err)
			failed = true
			sess.conn.Close()
		}
	}
	sess.conn.Close()
}

// close stops the scheduler and the writer. Nothing enqueues after the
// scheduler has stopped and the reader has returned.
func (sess *session) close() {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	sess.sched.Stop()
	sess.mu.Unlock()

	close(sess.send)
}
