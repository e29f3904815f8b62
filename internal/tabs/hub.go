package tabs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/browser"

	"smartlauncher/internal/models"
)

const defaultForgetAfter = 2 * time.Minute

// Hub opens tabs in the user's browser and talks to each page over the
// websocket the page's bridge opens back to the daemon.
type Hub struct {
	mu          sync.Mutex
	tabs        map[string]*hubTab
	opener      func(string) error
	forgetAfter time.Duration
	upgrader    websocket.Upgrader
}

type hubTab struct {
	id       string
	loaded   chan struct{}
	loadOnce sync.Once
	closed   chan struct{}
	conn     *websocket.Conn
	writeMu  sync.Mutex
	ackMu    sync.Mutex
	acks     map[string]chan models.TabAck
}

type HubOption func(*Hub)

// WithOpener replaces the system browser launcher.
func WithOpener(fn func(string) error) HubOption {
	return func(h *Hub) { h.opener = fn }
}

// WithForgetAfter bounds how long a tab that never connects is remembered.
func WithForgetAfter(d time.Duration) HubOption {
	return func(h *Hub) { h.forgetAfter = d }
}

// WithCheckOrigin restricts which pages may attach to a tab channel.
func WithCheckOrigin(fn func(*http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		tabs:        make(map[string]*hubTab),
		opener:      browser.OpenURL,
		forgetAfter: defaultForgetAfter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Open(_ context.Context, rawURL string) (Tab, error) {
	id := uuid.NewString()
	tabURL, err := withTabParam(rawURL, id)
	if err != nil {
		return Tab{}, fmt.Errorf("build tab url: %w", err)
	}
	t := &hubTab{
		id:     id,
		loaded: make(chan struct{}),
		closed: make(chan struct{}),
		acks:   make(map[string]chan models.TabAck),
	}
	h.mu.Lock()
	h.tabs[id] = t
	h.mu.Unlock()

	if err := h.opener(tabURL); err != nil {
		h.forget(id)
		return Tab{}, fmt.Errorf("open browser: %w", err)
	}
	time.AfterFunc(h.forgetAfter, func() {
		select {
		case <-t.loaded:
		default:
			h.forget(id)
		}
	})
	return Tab{ID: id, URL: tabURL}, nil
}

func (h *Hub) WaitLoaded(ctx context.Context, tabID string) error {
	t, ok := h.get(tabID)
	if !ok {
		return ErrUnknownTab
	}
	select {
	case <-t.loaded:
		return nil
	case <-t.closed:
		return ErrTabClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Send(ctx context.Context, tabID string, msg models.TabMessage) (models.TabAck, error) {
	t, ok := h.get(tabID)
	if !ok {
		return models.TabAck{}, ErrUnknownTab
	}
	select {
	case <-t.loaded:
	default:
		return models.TabAck{}, fmt.Errorf("tab %s not loaded", tabID)
	}

	ackCh := make(chan models.TabAck, 1)
	t.ackMu.Lock()
	t.acks[msg.SessionID] = ackCh
	t.ackMu.Unlock()
	defer func() {
		t.ackMu.Lock()
		delete(t.acks, msg.SessionID)
		t.ackMu.Unlock()
	}()

	if err := t.write(ctx, msg); err != nil {
		return models.TabAck{}, err
	}

	select {
	case ack := <-ackCh:
		return ack, nil
	case <-t.closed:
		return models.TabAck{}, ErrTabClosed
	case <-ctx.Done():
		return models.TabAck{}, ctx.Err()
	}
}

// write sends one frame, bounded by ctx. A cut-short frame leaves the
// channel unusable, so the conn is closed on any failure.
func (t *hubTab) write(ctx context.Context, msg models.TabMessage) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		t.conn.UnderlyingConn().SetWriteDeadline(time.Now())
	})
	err := t.conn.WriteJSON(msg)
	stop()
	if err == nil {
		return nil
	}

	t.conn.Close()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("write tab message: %w", ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("write tab message: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("write tab message: %w", err)
}

// ServeTab upgrades the page's request and marks the tab loaded.
func (h *Hub) ServeTab(w http.ResponseWriter, r *http.Request, tabID string) error {
	t, ok := h.get(tabID)
	if !ok {
		return ErrUnknownTab
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade tab %s: %w", tabID, err)
	}
	attached := false
	t.loadOnce.Do(func() {
		t.conn = conn
		attached = true
		close(t.loaded)
	})
	if !attached {
		conn.Close()
		return fmt.Errorf("tab %s already attached", tabID)
	}
	debugLog("tab %s attached", tabID)
	go h.readLoop(t)
	return nil
}

func (h *Hub) readLoop(t *hubTab) {
	defer func() {
		t.conn.Close()
		close(t.closed)
		h.forget(t.id)
		debugLog("tab %s detached", t.id)
	}()
	for {
		var ack models.TabAck
		if err := t.conn.ReadJSON(&ack); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("tab %s read failed: %v", t.id, err)
			}
			return
		}
		t.ackMu.Lock()
		ch, ok := t.acks[ack.SessionID]
		t.ackMu.Unlock()
		if ok {
			select {
			case ch <- ack:
			default:
			}
		}
	}
}

func (h *Hub) get(id string) (*hubTab, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	return t, ok
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	delete(h.tabs, id)
	h.mu.Unlock()
}
