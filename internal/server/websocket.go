package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/javarena/internal/explain"
	"github.com/michaelbrown/javarena/internal/session"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxMessage   = 1 << 20
	disconnectWait = 5 * time.Second
)

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type string `json:"type"` // start, input, eof, stop
	Code string `json:"code,omitempty"`
	Data string `json:"data,omitempty"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      string          `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Review    *explain.Review `json:"review,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ExitCode  *int            `json:"exit_code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	log  *slog.Logger
}

func (c *wsConn) send(msg wsOutgoing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Debug("websocket write failed", "type", msg.Type, "err", err)
		return err
	}
	return nil
}

func (c *wsConn) sendError(msg string) {
	c.send(wsOutgoing{Type: "error", Message: msg})
}

// wsSink forwards one session's output to the socket. Chunks are cut at
// rune boundaries so every message is valid UTF-8.
type wsSink struct {
	c       *wsConn
	source  string
	partial []byte
}

func (k *wsSink) Started(id string) error {
	return k.c.send(wsOutgoing{Type: "started", SessionID: id})
}

func (k *wsSink) Output(p []byte) error {
	buf := append(k.partial, p...)
	cut := completePrefix(buf)
	k.partial = append([]byte(nil), buf[cut:]...)
	if cut == 0 {
		return nil
	}
	return k.c.send(wsOutgoing{Type: "output", Data: string(buf[:cut])})
}

func (k *wsSink) Terminated(n session.Notice) error {
	if len(k.partial) > 0 {
		k.c.send(wsOutgoing{Type: "output", Data: string(k.partial)})
		k.partial = nil
	}
	if n.Reason == session.ReasonCompileFailed {
		k.c.send(wsOutgoing{
			Type:   "compile_error",
			Error:  n.Message,
			Review: explain.Explain(n.Message, k.source, true),
		})
	}
	code := n.ExitCode
	return k.c.send(wsOutgoing{
		Type:     "terminated",
		Reason:   string(n.Reason),
		ExitCode: &code,
		Message:  n.Message,
	})
}

// completePrefix returns the length of the longest prefix of p that does
// not end inside a multi-byte rune. Invalid bytes count as complete.
func completePrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if !utf8.FullRune(p[i:]) {
			return i
		}
		break
	}
	return len(p)
}

func (s *Server) handleInteractive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "interactive sessions are disabled")
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	c := &wsConn{conn: conn, log: s.log}
	var current *session.Session
	defer func() {
		if current == nil {
			return
		}
		current.Stop(session.ReasonDisconnected)
		select {
		case <-current.Done():
		case <-time.After(disconnectWait):
			s.log.Warn("session outlived its connection", "session", current.ID())
		}
	}()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read ended", "err", err)
			}
			return
		}

		switch msg.Type {
		case "start":
			if current != nil && current.State() != session.Terminated {
				c.sendError("a program is already running")
				continue
			}
			if strings.TrimSpace(msg.Code) == "" {
				c.sendError("No code provided")
				continue
			}
			// The session outlives this request's context; it ends on
			// stop, disconnect, exit or reaping. It compiles in the
			// background so stop and disconnect are seen mid-build.
			current = s.deps.Sessions.Begin(r.Context(), msg.Code, &wsSink{c: c, source: msg.Code})
		case "input":
			if current == nil {
				c.sendError("no program is running")
				continue
			}
			if _, err := current.Write([]byte(msg.Data)); err != nil {
				c.sendError(err.Error())
			}
		case "eof":
			if current != nil {
				current.CloseInput()
			}
		case "stop":
			if current != nil {
				current.Stop(session.ReasonStopped)
			}
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}
