package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/javarena/internal/storage"
	"github.com/michaelbrown/javarena/internal/toolchain/toolchaintest"
)

func dial(t *testing.T, f fixture) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/interactive"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg wsIncoming) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

func next(t *testing.T, conn *websocket.Conn) wsOutgoing {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsOutgoing
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// collect reads until a message of type stop and returns the
// concatenated output seen on the way.
func collect(t *testing.T, conn *websocket.Conn, stop string) (string, wsOutgoing) {
	t.Helper()
	var out strings.Builder
	for {
		msg := next(t, conn)
		switch msg.Type {
		case "output":
			out.WriteString(msg.Data)
		case stop:
			return out.String(), msg
		case "error":
			t.Fatalf("server error: %s", msg.Message)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInteractiveRoundTrip(t *testing.T) {
	java := `printf 'Name? '
read name
echo "Hello, $name"`
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, java), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	started := next(t, conn)
	if started.Type != "started" || started.SessionID == "" {
		t.Fatalf("first message = %+v", started)
	}

	if prompt := collectN(t, conn, len("Name? ")); prompt != "Name? " {
		t.Fatalf("prompt = %q", prompt)
	}
	send(t, conn, wsIncoming{Type: "input", Data: "Bob\n"})

	out, term := collect(t, conn, "terminated")
	if out != "Hello, Bob\n" {
		t.Errorf("output = %q", out)
	}
	if term.Reason != "exited" || term.ExitCode == nil || *term.ExitCode != 0 {
		t.Errorf("terminated = %+v", term)
	}

	waitFor(t, "history record", func() bool {
		e, err := f.store.GetExecution(context.Background(), started.SessionID)
		return err == nil && e.Mode == storage.ModeInteractive && e.Status == storage.StatusCompleted
	})
}

// collectN reads output messages until at least n bytes have arrived.
func collectN(t *testing.T, conn *websocket.Conn, n int) string {
	t.Helper()
	var out strings.Builder
	for out.Len() < n {
		msg := next(t, conn)
		if msg.Type != "output" {
			t.Fatalf("unexpected %+v while waiting for output", msg)
		}
		out.WriteString(msg.Data)
	}
	return out.String()
}

func TestInteractiveCompileError(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileError, "true"), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "start", Code: "public class Main {"})
	ce := next(t, conn)
	if ce.Type != "compile_error" || !strings.Contains(ce.Error, "';' expected") {
		t.Fatalf("first message = %+v", ce)
	}
	if ce.Review == nil || ce.Review.ErrorType != "compilation" {
		t.Errorf("review = %+v", ce.Review)
	}
	term := next(t, conn)
	if term.Type != "terminated" || term.Reason != "compile_failed" {
		t.Errorf("second message = %+v", term)
	}
}

func TestInteractiveStopAndRestart(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "exec sleep 30"), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	if msg := next(t, conn); msg.Type != "started" {
		t.Fatalf("first message = %+v", msg)
	}

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	if msg := next(t, conn); msg.Type != "error" || !strings.Contains(msg.Message, "already running") {
		t.Errorf("second start = %+v", msg)
	}

	send(t, conn, wsIncoming{Type: "stop"})
	if _, term := collect(t, conn, "terminated"); term.Reason != "stopped" {
		t.Errorf("terminated = %+v", term)
	}

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	if msg := next(t, conn); msg.Type != "started" {
		t.Errorf("restart = %+v", msg)
	}
}

func TestInteractiveStopDuringCompile(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, "exec sleep 30", "echo never"), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	waitFor(t, "session registered", func() bool { return f.sessions.Count() == 1 })

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	if msg := next(t, conn); msg.Type != "error" || !strings.Contains(msg.Message, "already running") {
		t.Errorf("start while compiling = %+v", msg)
	}

	start := time.Now()
	send(t, conn, wsIncoming{Type: "stop"})
	term := next(t, conn)
	if term.Type != "terminated" || term.Reason != "stopped" || term.Message != "Process stopped" {
		t.Errorf("terminated = %+v", term)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("stop took %s; compile was not aborted", elapsed)
	}
	waitFor(t, "session teardown", func() bool { return f.sessions.Count() == 0 })
}

func TestInteractiveDisconnectStopsSession(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "exec sleep 30"), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	started := next(t, conn)
	if started.Type != "started" {
		t.Fatalf("first message = %+v", started)
	}
	if f.sessions.Count() != 1 {
		t.Fatalf("Count = %d, want 1", f.sessions.Count())
	}

	conn.Close()
	waitFor(t, "session teardown", func() bool { return f.sessions.Count() == 0 })
	waitFor(t, "history record", func() bool {
		e, err := f.store.GetExecution(context.Background(), started.SessionID)
		return err == nil && e.Status == storage.StatusStopped && e.Error == "disconnected"
	})
}

func TestInteractiveRejectsBadMessages(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "true"), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "input", Data: "x"})
	if msg := next(t, conn); msg.Type != "error" || msg.Message != "no program is running" {
		t.Errorf("input without session = %+v", msg)
	}
	send(t, conn, wsIncoming{Type: "start"})
	if msg := next(t, conn); msg.Type != "error" || msg.Message != "No code provided" {
		t.Errorf("empty start = %+v", msg)
	}
	send(t, conn, wsIncoming{Type: "dance"})
	if msg := next(t, conn); msg.Type != "error" {
		t.Errorf("unknown type = %+v", msg)
	}
}

func TestCompletePrefix(t *testing.T) {
	euro := []byte("€") // 3 bytes
	tests := []struct {
		in   []byte
		want int
	}{
		{[]byte("abc"), 3},
		{nil, 0},
		{append([]byte("a"), euro[:1]...), 1},
		{append([]byte("a"), euro[:2]...), 1},
		{append([]byte("a"), euro...), 4},
		{[]byte{0xff, 0xfe}, 2},
	}
	for _, tt := range tests {
		if got := completePrefix(tt.in); got != tt.want {
			t.Errorf("completePrefix(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSinkJoinsSplitRunes(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, `printf '\342\202'; sleep 0.1; printf '\254 ok\n'`), nil)
	conn := dial(t, f)

	send(t, conn, wsIncoming{Type: "start", Code: helloSource})
	if msg := next(t, conn); msg.Type != "started" {
		t.Fatalf("first message = %+v", msg)
	}
	out, _ := collect(t, conn, "terminated")
	if out != "€ ok\n" {
		t.Errorf("output = %q", out)
	}
}
