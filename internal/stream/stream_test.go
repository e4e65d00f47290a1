package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/internal/deliberation"
)

var upgrader = websocket.Upgrader{}

// streamServer is a scripted stand-in for the quorum service's event endpoint.
type streamServer struct {
	t *testing.T

	mu      sync.Mutex
	accepts int
	afters  []string

	// script returns, per connection index, the ack plus the frames to push
	// before closing the connection.
	script func(connIndex int) (ack connectionAck, frames []string, hold bool)
}

func (s *streamServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	index := s.accepts
	s.accepts++
	s.afters = append(s.afters, r.URL.Query().Get("after"))
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	ack, frames, hold := s.script(index)
	ack.Type = "connection_ack"
	payload, _ := json.Marshal(ack)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}
	if hold {
		// Keep the connection open until the peer goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (s *streamServer) after(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.afters[i]
}

func TestClientDeliversFramesInOrder(t *testing.T) {
	received := make(chan string, 4)
	srv := &streamServer{t: t, script: func(int) (connectionAck, []string, bool) {
		return connectionAck{Continuous: true},
			[]string{`{"event_type":"contribution","n":1}`, `{"event_type":"contribution","n":2}`},
			true
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, err := New(Config{
		ServerURL: ts.URL,
		SessionID: "sess-1",
		OnEvent:   func(raw []byte) { received <- string(raw) },
	})
	require.NoError(t, err)
	defer client.Close()

	go client.Run(context.Background())

	require.Equal(t, `{"event_type":"contribution","n":1}`, <-received)
	require.Equal(t, `{"event_type":"contribution","n":2}`, <-received)
}

func TestClientReconnectsAndReportsResume(t *testing.T) {
	received := make(chan string, 4)
	resumes := make(chan deliberation.ResumeInfo, 2)
	srv := &streamServer{t: t}
	srv.script = func(index int) (connectionAck, []string, bool) {
		if index == 0 {
			// First connection drops after one event.
			return connectionAck{Continuous: true}, []string{`{"event_type":"contribution","n":1}`}, false
		}
		return connectionAck{Continuous: false, MissedEvents: 3},
			[]string{`{"event_type":"contribution","n":2}`}, true
	}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	var mu sync.Mutex
	marker := ""

	client, err := New(Config{
		ServerURL: ts.URL,
		SessionID: "sess-1",
		Marker: func() string {
			mu.Lock()
			defer mu.Unlock()
			return marker
		},
		OnEvent: func(raw []byte) {
			mu.Lock()
			marker = "m-last"
			mu.Unlock()
			received <- string(raw)
		},
		OnResume:    func(info deliberation.ResumeInfo) { resumes <- info },
		BackoffBase: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Close()

	go client.Run(context.Background())

	require.Equal(t, `{"event_type":"contribution","n":1}`, <-received)

	select {
	case info := <-resumes:
		require.False(t, info.Continuous)
		require.Equal(t, 3, info.MissedHint)
		require.Equal(t, "m-last", info.Marker)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resume notification")
	}

	require.Equal(t, `{"event_type":"contribution","n":2}`, <-received)
	require.Equal(t, "", srv.after(0))
	require.Equal(t, "m-last", srv.after(1))
}

func TestClientCloseUnblocksRun(t *testing.T) {
	srv := &streamServer{t: t, script: func(int) (connectionAck, []string, bool) {
		return connectionAck{Continuous: true}, nil, true
	}}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	client, err := New(Config{
		ServerURL: ts.URL,
		SessionID: "sess-1",
		OnEvent:   func([]byte) {},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit after Close")
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(Config{SessionID: "s", OnEvent: func([]byte) {}})
	require.Error(t, err)
	_, err = New(Config{ServerURL: "http://x", OnEvent: func([]byte) {}})
	require.Error(t, err)
	_, err = New(Config{ServerURL: "http://x", SessionID: "s"})
	require.Error(t, err)
}
