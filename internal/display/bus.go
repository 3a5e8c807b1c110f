package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"mirror/internal/history"
)

const (
	KindSubtitle = "subtitle"
	KindEmotion  = "emotion"
	KindOutfit   = "outfit"
	// KindSay arrives from the display: typed text to treat as an utterance.
	KindSay = "say"
)

// Message is one JSON frame on the display bus.
type Message struct {
	Kind    string    `json:"kind"`
	Content string    `json:"content,omitempty"`
	Image   []byte    `json:"image,omitempty"`
	At      time.Time `json:"at"`
}

type BusConfig struct {
	URL string
	// Reconnect is the pause between dial attempts.
	Reconnect    time.Duration
	WriteTimeout time.Duration
	Queue        int
	// OnMessage receives frames sent by the display.
	OnMessage func(Message)
	Now       func() time.Time
}

// Bus is a websocket client to the mirror's display. Publishing never
// blocks: frames are queued and dropped when the queue is full.
type Bus struct {
	cfg    BusConfig
	dialer *websocket.Dialer
	out    chan Message
}

var ErrQueueFull = errors.New("display queue full")

func NewBus(cfg BusConfig) *Bus {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 2 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 64
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bus{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		out:    make(chan Message, cfg.Queue),
	}
}

func (b *Bus) PublishSubtitle(text string) {
	_ = b.enqueue(Message{Kind: KindSubtitle, Content: text})
}

func (b *Bus) PublishEmotion(label string) {
	_ = b.enqueue(Message{Kind: KindEmotion, Content: label})
}

// Present sends the outfit's image to the display.
func (b *Bus) Present(_ context.Context, e history.Entry) error {
	img, err := os.ReadFile(e.ImagePath)
	if err != nil {
		return fmt.Errorf("present outfit %d: %w", e.ID, err)
	}
	return b.enqueue(Message{Kind: KindOutfit, Content: e.Name, Image: img})
}

func (b *Bus) enqueue(m Message) error {
	if m.At.IsZero() {
		m.At = b.cfg.Now()
	}
	select {
	case b.out <- m:
		return nil
	default:
		log.Warn("Display queue full, dropping", "kind", m.Kind)
		return ErrQueueFull
	}
}

// Run keeps a connection to the display until ctx is cancelled,
// reconnecting whenever it drops.
func (b *Bus) Run(ctx context.Context) error {
	for {
		conn, err := b.connect(ctx)
		if err != nil {
			return nil
		}
		log.Info("Connected to display", "url", b.cfg.URL)

		err = b.serve(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("Display connection lost", "url", b.cfg.URL, "err", err)
	}
}

// connect dials until it succeeds or ctx is done.
func (b *Bus) connect(ctx context.Context) (*websocket.Conn, error) {
	for {
		conn, _, err := b.dialer.DialContext(ctx, b.cfg.URL, nil)
		if err == nil {
			return conn, nil
		}
		log.Debug("Display dial failed", "url", b.cfg.URL, "err", err)

		t := time.NewTimer(b.cfg.Reconnect)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (b *Bus) serve(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- b.readLoop(conn) }()

	defer func() {
		_ = conn.Close()
		<-readErr
	}()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return ctx.Err()

		case err := <-readErr:
			readErr <- err
			return err

		case m := <-b.out:
			data, err := json.Marshal(m)
			if err != nil {
				log.Error("Failed to marshal display message", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (b *Bus) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Failed to parse display message", "msg", string(data), "err", err)
			continue
		}
		if b.cfg.OnMessage != nil {
			b.cfg.OnMessage(m)
		}
	}
}
