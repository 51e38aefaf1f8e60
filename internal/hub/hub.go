package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-live-translate/internal/channel"
	"github.com/nupi-ai/plugin-live-translate/internal/moduleinfo"
	"github.com/nupi-ai/plugin-live-translate/internal/telemetry"
)

const (
	// EchoPrefix is prepended to every message event the hub rebroadcasts.
	EchoPrefix = "Echo: "

	defaultSendBuffer   = 16
	defaultWriteTimeout = 2 * time.Second
	maxFrameSize        = 1 << 20
)

// Options tunes the hub.
type Options struct {
	// SendBuffer is the per-client queue length; frames beyond it are dropped.
	SendBuffer   int
	WriteTimeout time.Duration
}

// Hub fans transcription results out to websocket subscribers.
type Hub struct {
	opts     Options
	recorder *telemetry.Recorder
	log      *slog.Logger
	app      *fiber.App

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// New builds a hub and its fiber app. Subscribers connect on channel.DefaultPath.
func New(opts Options, recorder *telemetry.Recorder, logger *slog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		opts:     opts,
		recorder: recorder,
		log:      logger.With("component", "hub.Hub"),
		clients:  make(map[*client]struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               moduleinfo.Info.Name + " hub",
		DisableStartupMessage: true,
	})
	app.Use(channel.DefaultPath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(channel.DefaultPath, websocket.New(h.serve))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "clients": h.Clients()})
	})
	h.app = app
	return h
}

// App returns the fiber app serving the hub.
func (h *Hub) App() *fiber.App { return h.app }

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	for cl := range clients {
		close(cl.send)
	}
	h.mu.Unlock()

	for cl := range clients {
		<-cl.done
	}
}

func (h *Hub) serve(conn *websocket.Conn) {
	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.add(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"),
			time.Now().Add(h.opts.WriteTimeout))
		return
	}
	log := h.log.With("client", cl.id)
	log.Info("subscriber connected")

	go h.writePump(cl, log)

	conn.SetReadLimit(maxFrameSize)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("subscriber disconnected")
			} else {
				log.Debug("subscriber read ended", "error", err)
			}
			break
		}
		h.handleFrame(cl, frame, log)
	}

	h.remove(cl)
	<-cl.done
}

func (h *Hub) handleFrame(from *client, frame []byte, log *slog.Logger) {
	env, err := channel.DecodeEnvelope(frame)
	if err != nil {
		log.Warn("ignoring malformed frame", "error", err)
		return
	}

	switch env.Event {
	case channel.EventTranscriptionResult:
		var payload channel.Payload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			log.Warn("ignoring malformed transcription result", "error", err)
			return
		}
		// Subscribers only ever see the canonical {original, translated} shape.
		out, err := channel.EncodeEvent(channel.EventTranscriptionResult, payload)
		if err != nil {
			log.Error("encode transcription result", "error", err)
			return
		}
		h.broadcast(out, from)
	case channel.EventMessage:
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			log.Warn("message event data must be a string", "error", err)
			return
		}
		log.Info("message received", "message", msg)
		out, err := channel.EncodeEvent(channel.EventMessage, EchoPrefix+msg)
		if err != nil {
			log.Error("encode echo", "error", err)
			return
		}
		h.broadcast(out, nil)
	default:
		log.Debug("ignoring unknown event", "event", env.Event)
	}
}

// broadcast queues frame for every client except skip. A full queue drops the
// frame for that client only.
func (h *Hub) broadcast(frame []byte, skip *client) {
	var delivered, dropped int

	h.mu.RLock()
	for cl := range h.clients {
		if cl == skip {
			continue
		}
		select {
		case cl.send <- frame:
			delivered++
		default:
			dropped++
			h.log.Warn("subscriber queue full; frame dropped", "client", cl.id)
		}
	}
	h.mu.RUnlock()

	h.recorder.RecordFanout(delivered, dropped)
}

func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}

// writePump is the only writer on the connection. It exits once send is closed.
func (h *Hub) writePump(cl *client, log *slog.Logger) {
	defer close(cl.done)

	broken := false
	for frame := range cl.send {
		if broken {
			continue
		}
		_ = cl.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Warn("subscriber write failed", "error", err)
			broken = true
			_ = cl.conn.Close()
		}
	}
	if !broken {
		_ = cl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(h.opts.WriteTimeout))
	}
}
