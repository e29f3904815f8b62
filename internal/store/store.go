package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartlauncher/internal/models"
)

const (
	sessionPrefix = "transfer_"
	flagPrefix    = "launcher_"
)

// ErrSessionNotFound covers both absent and expired sessions; callers cannot
// and must not tell the two apart.
var ErrSessionNotFound = errors.New("session expired or not found")

// StorageError reports a failure of the underlying persistence.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store persists TransferSessions with an application-enforced TTL.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	sealer  *Sealer
	onSweep func(int)
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSealer encrypts records at rest.
func WithSealer(sealer *Sealer) Option {
	return func(s *Store) { s.sealer = sealer }
}

// WithSweepHook is called with the number of records each sweep removed.
func WithSweepHook(fn func(int)) Option {
	return func(s *Store) { s.onSweep = fn }
}

// New wraps backend. ttl bounds how long an undelivered session stays claimable.
func New(backend Backend, ttl time.Duration, opts ...Option) *Store {
	s := &Store{backend: backend, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL reports the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Now is the store's clock; sessions are stamped with it.
func (s *Store) Now() time.Time { return s.now() }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

func sessionKey(id string) string { return sessionPrefix + id }

// Put writes session, overwriting any record with the same id.
func (s *Store) Put(ctx context.Context, session *models.TransferSession) error {
	if session == nil || session.SessionID == "" {
		return errors.New("session id is required")
	}
	key := sessionKey(session.SessionID)
	data, err := s.encode(key, session.Record())
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, data, session.ExpiresAt); err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

// Get returns the live session or ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.TransferSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	key := sessionKey(sessionID)
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	return s.live(key, data)
}

// Take consumes the session: a second Take for the same id finds nothing.
func (s *Store) Take(ctx context.Context, sessionID string) (*models.TransferSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	key := sessionKey(sessionID)
	data, err := s.backend.Pop(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, &StorageError{Op: "take", Err: err}
	}
	session, err := s.live(key, data)
	if err != nil {
		return nil, err
	}
	go func() {
		if _, err := s.SweepExpired(context.Background()); err != nil {
			log.Printf("store sweep after consume failed: %v", err)
		}
	}()
	return session, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.backend.Delete(ctx, sessionKey(sessionID)); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// SweepExpired deletes every expired or unreadable session record.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	keys, err := s.backend.Keys(ctx, sessionPrefix)
	if err != nil {
		return 0, &StorageError{Op: "sweep", Err: err}
	}
	now := s.now()
	removed := 0
	for _, key := range keys {
		data, err := s.backend.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrKeyNotFound) {
				log.Printf("store sweep read %s failed: %v", key, err)
			}
			continue
		}
		record, err := s.decode(key, data)
		if err == nil && now.UnixMilli() < record.Expiry {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			log.Printf("store sweep delete %s failed: %v", key, err)
			continue
		}
		removed++
	}
	if s.onSweep != nil && removed > 0 {
		s.onSweep(removed)
	}
	return removed, nil
}

// Flag reports whether a launcher flag has been set.
func (s *Store) Flag(ctx context.Context, name string) (bool, error) {
	_, err := s.backend.Get(ctx, flagPrefix+name)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, &StorageError{Op: "flag", Err: err}
	}
	return true, nil
}

// SetFlag records a launcher flag with no expiry.
func (s *Store) SetFlag(ctx context.Context, name string) error {
	if err := s.backend.Set(ctx, flagPrefix+name, []byte("1"), time.Time{}); err != nil {
		return &StorageError{Op: "flag", Err: err}
	}
	return nil
}

func (s *Store) live(key string, data []byte) (*models.TransferSession, error) {
	record, err := s.decode(key, data)
	if err != nil {
		log.Printf("store decode %s failed: %v", key, err)
		return nil, ErrSessionNotFound
	}
	session := record.Session()
	if session.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) encode(key string, record models.StoredRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if s.sealer != nil {
		return s.sealer.Seal(key, data)
	}
	return data, nil
}

func (s *Store) decode(key string, data []byte) (models.StoredRecord, error) {
	var record models.StoredRecord
	if s.sealer != nil {
		plain, err := s.sealer.Open(key, data)
		if err != nil {
			return record, err
		}
		data = plain
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, err
	}
	if !strings.HasPrefix(key, sessionPrefix) || record.SessionID != strings.TrimPrefix(key, sessionPrefix) {
		return record, errors.New("session id does not match key")
	}
	return record, nil
}
