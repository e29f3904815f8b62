// Package transfer moves user-selected files from the launcher into a
// destination tab, choosing between the storage and postmessage strategies.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"smartlauncher/internal/config"
	"smartlauncher/internal/destination"
	"smartlauncher/internal/models"
	"smartlauncher/internal/serializer"
	"smartlauncher/internal/store"
	"smartlauncher/internal/tabs"
)

// Config holds the limits a Manager enforces.
type Config struct {
	MaxBatchBytes       int64
	StorageCeilingBytes int64
	TabReadyTimeout     time.Duration
	Policy              string
}

// ConfigFrom maps the transfer section of the daemon config.
func ConfigFrom(c config.TransferConfig) Config {
	return Config{
		MaxBatchBytes:       c.MaxBatchBytes,
		StorageCeilingBytes: c.StorageCeilingBytes,
		TabReadyTimeout:     time.Duration(c.TabReadyTimeoutSeconds) * time.Second,
		Policy:              c.ValidationPolicy,
	}
}

// Result describes a delivered (or partially delivered) transfer.
type Result struct {
	Success        bool                  `json:"success"`
	SessionID      string                `json:"sessionId"`
	TransferMethod models.TransferMethod `json:"transferMethod"`
	TabID          string                `json:"tabId,omitempty"`
	URL            string                `json:"url,omitempty"`
}

// Manager runs transfers. It is safe for concurrent use.
type Manager struct {
	store      *store.Store
	serializer *serializer.Serializer
	browser    tabs.Browser
	urls       *destination.Builder
	cfg        Config
	strategies []Strategy
	metrics    *Metrics
	newID      func() string
	after      func(time.Duration, func())
}

type Option func(*Manager)

func WithMetrics(m *Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithIDGenerator replaces the session id source.
func WithIDGenerator(fn func() string) Option {
	return func(mgr *Manager) { mgr.newID = fn }
}

// WithScheduler replaces time.AfterFunc for deferred cleanup.
func WithScheduler(fn func(time.Duration, func())) Option {
	return func(mgr *Manager) { mgr.after = fn }
}

func NewManager(st *store.Store, ser *serializer.Serializer, browser tabs.Browser, urls *destination.Builder, cfg Config, opts ...Option) *Manager {
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = config.DefaultMaxBatchBytes
	}
	if cfg.StorageCeilingBytes <= 0 {
		cfg.StorageCeilingBytes = config.DefaultStorageCeilingBytes
	}
	if cfg.TabReadyTimeout <= 0 {
		cfg.TabReadyTimeout = config.DefaultTabReadyTimeout * time.Second
	}
	if cfg.Policy == "" {
		cfg.Policy = config.PolicyStrict
	}
	m := &Manager{
		store:      st,
		serializer: ser,
		browser:    browser,
		urls:       urls,
		cfg:        cfg,
		newID:      NewSessionID,
		after:      func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
	for _, opt := range opts {
		opt(m)
	}
	// order matters: the first strategy that accepts a batch wins
	m.strategies = []Strategy{storageStrategy{m}, postMessageStrategy{m}}
	return m
}

// NewSessionID returns an opaque id that is never reused.
func NewSessionID() string {
	return "ext_" + uuid.NewString()
}

// Transfer validates, serializes and delivers files. Validation and
// serialization failures have no side effects; once a tab is open it is left
// open and the returned Result names it.
func (m *Manager) Transfer(ctx context.Context, files []serializer.Source, tool string, opts models.TransferOptions) (*Result, error) {
	valid, err := m.validate(files)
	if err != nil {
		m.metrics.observe("", "invalid", 0)
		log.Printf("transfer rejected: %v", err)
		return nil, err
	}

	serialized, err := m.serializer.SerializeAll(valid)
	if err != nil {
		m.metrics.observe("", "invalid", 0)
		log.Printf("transfer serialization failed: %v", err)
		return nil, err
	}

	b := &batch{
		sessionID: m.newID(),
		tool:      tool,
		files:     serialized,
		size:      serializer.EncodedSize(serialized),
		urls:      m.urls,
	}
	if opts.Language != "" {
		b.urls = m.urls.WithLanguage(opts.Language)
	}
	strategy, err := m.pick(b.size)
	if err != nil {
		return nil, err
	}

	res, err := strategy.Deliver(ctx, b)
	if err != nil {
		m.metrics.observe(strategy.Method(), outcome(err), 0)
		log.Printf("transfer %s via %s failed: %v", b.sessionID, strategy.Method(), err)
		return res, err
	}
	m.metrics.observe(strategy.Method(), "success", b.size)
	log.Printf("transfer %s: %d file(s), %d bytes via %s", b.sessionID, len(b.files), b.size, strategy.Method())
	return res, nil
}

// TransferSerialized accepts files that already crossed a context boundary in
// serialized form.
func (m *Manager) TransferSerialized(ctx context.Context, files []models.SerializedFile, tool string, opts models.TransferOptions) (*Result, error) {
	srcs := make([]serializer.Source, 0, len(files))
	for _, f := range files {
		file, err := serializer.Deserialize(f)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, file.AsSource())
	}
	return m.Transfer(ctx, srcs, tool, opts)
}

// Consume hands a stored session to the destination exactly once.
func (m *Manager) Consume(ctx context.Context, sessionID string) (*models.TransferSession, error) {
	session, err := m.store.Take(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.metrics.observeConsumed()
	log.Printf("transfer %s consumed (%d file(s))", sessionID, len(session.Files))
	return session, nil
}

// Cleanup removes a session early. Absent sessions are fine.
func (m *Manager) Cleanup(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

func (m *Manager) pick(size int64) (Strategy, error) {
	for _, s := range m.strategies {
		if s.Accepts(size) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no transfer strategy accepts %d bytes", size)
}

func (m *Manager) scheduleCleanup(sessionID string) {
	m.after(m.store.TTL(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.store.Delete(ctx, sessionID); err != nil {
			log.Printf("transfer cleanup %s failed: %v", sessionID, err)
		}
	})
}

func outcome(err error) string {
	var timeout *TransferTimeoutError
	var storageErr *store.StorageError
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &storageErr):
		return "storage_error"
	default:
		return "error"
	}
}
