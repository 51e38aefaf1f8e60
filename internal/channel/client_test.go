package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newEchoHub accepts websocket connections on /ws and forwards every text
// frame it receives to frames.
func newEchoHub(t *testing.T) (*httptest.Server, <-chan []byte, <-chan *websocket.Conn) {
	t.Helper()
	frames := make(chan []byte, 16)
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, frames, conns
}

func hostPort(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "localhost:3000", want: "ws://localhost:3000/ws"},
		{in: "ws://hub:4000/events", want: "ws://hub:4000/events"},
		{in: "wss://hub.example", want: "wss://hub.example/ws"},
		{in: "http://hub:3000", want: "ws://hub:3000/ws"},
		{in: "", wantErr: true},
		{in: "ftp://hub", wantErr: true},
	}
	for _, tc := range tests {
		got, err := EndpointURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("EndpointURL(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("EndpointURL(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestEncodeEventWireShape(t *testing.T) {
	frame, err := EncodeEvent(EventTranscriptionResult, Payload{Original: "hola", Translated: "hello"})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	want := `{"event":"transcription_result","data":{"original":"hola","translated":"hello"}}`
	if string(frame) != want {
		t.Fatalf("unexpected frame:\nwant %s\ngot  %s", want, frame)
	}
}

func TestClientPublishDeliversFrame(t *testing.T) {
	srv, frames, _ := newEchoHub(t)
	client, err := NewClient(Options{Endpoint: hostPort(srv), DialTimeout: time.Second, WriteTimeout: time.Second}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("second Connect should be a no-op: %v", err)
	}
	if err := client.Publish(ctx, Payload{Original: "hello", Translated: "hello"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case frame := <-frames:
		env, err := DecodeEnvelope(frame)
		if err != nil {
			t.Fatalf("DecodeEnvelope: %v", err)
		}
		var payload Payload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if env.Event != EventTranscriptionResult || payload.Original != "hello" || payload.Translated != "hello" {
			t.Fatalf("unexpected event %s %+v", env.Event, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestClientConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := hostPort(srv)
	srv.Close()

	client, err := NewClient(Options{Endpoint: addr, DialTimeout: time.Second}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = client.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if client.Connected() {
		t.Fatal("client must not report connected after failure")
	}
}

func TestClientPublishWithoutConnection(t *testing.T) {
	client, err := NewClient(Options{Endpoint: "localhost:1"}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = client.Publish(context.Background(), Payload{})
	var pubErr *PublishError
	if !errors.As(err, &pubErr) || !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected PublishError(ErrNotConnected), got %v", err)
	}
}

func TestClientDetectsServerClose(t *testing.T) {
	srv, _, conns := newEchoHub(t)
	client, err := NewClient(Options{Endpoint: hostPort(srv), WriteTimeout: time.Second}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	serverConn := <-conns
	serverConn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for client.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client did not notice the closed connection")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var pubErr *PublishError
	if err := client.Publish(context.Background(), Payload{}); !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError after disconnect, got %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !client.Connected() {
		t.Fatal("expected reconnect to restore the connection")
	}
}
