package models

import "time"

// TransferMethod records which strategy produced a session.
type TransferMethod string

const (
	MethodStorage     TransferMethod = "storage"
	MethodPostMessage TransferMethod = "postmessage"
)

// TransferSession is a time-boxed, single-use hand-off of files to the destination.
type TransferSession struct {
	SessionID      string           `json:"sessionId"`
	Files          []SerializedFile `json:"files"`
	Tool           string           `json:"tool"`
	TransferMethod TransferMethod   `json:"transferMethod"`
	CreatedAt      time.Time        `json:"-"`
	ExpiresAt      time.Time        `json:"-"`
}

// Expired reports whether the session is gone at now.
func (s *TransferSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// TotalSize sums the declared sizes of the files.
func (s *TransferSession) TotalSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}

// StoredRecord is the persisted shape of a storage-method session.
// Timestamp and Expiry are unix milliseconds.
type StoredRecord struct {
	Files          []SerializedFile `json:"files"`
	Tool           string           `json:"tool"`
	Timestamp      int64            `json:"timestamp"`
	Expiry         int64            `json:"expiry"`
	SessionID      string           `json:"sessionId"`
	TransferMethod TransferMethod   `json:"transferMethod"`
}

// Record converts the session into its persisted shape.
func (s *TransferSession) Record() StoredRecord {
	return StoredRecord{
		Files:          s.Files,
		Tool:           s.Tool,
		Timestamp:      s.CreatedAt.UnixMilli(),
		Expiry:         s.ExpiresAt.UnixMilli(),
		SessionID:      s.SessionID,
		TransferMethod: s.TransferMethod,
	}
}

// Session rebuilds the in-memory session from its persisted shape.
func (r StoredRecord) Session() *TransferSession {
	return &TransferSession{
		SessionID:      r.SessionID,
		Files:          r.Files,
		Tool:           r.Tool,
		TransferMethod: r.TransferMethod,
		CreatedAt:      time.UnixMilli(r.Timestamp),
		ExpiresAt:      time.UnixMilli(r.Expiry),
	}
}
