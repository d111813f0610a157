package store

import (
	"errors"
	"fmt"
	"time"
)

// Record is the single row shape shared by every log backend. A partition
// holds one aggregate: its stream-version row, idempotency markers and events.
type Record struct {
	Partition     string
	Row           string
	Token         string
	Version       int
	IsDeleted     bool
	AggregateType string
	EventType     string
	IdempotencyID string
	UserID        string
	When          time.Time
	Data          []byte
}

// Key addresses a single row.
type Key struct {
	Partition string
	Row       string
}

func (r Record) Key() Key {
	return Key{Partition: r.Partition, Row: r.Row}
}

type OpKind int

const (
	// OpInsert fails when the row already exists.
	OpInsert OpKind = iota
	// OpReplace fails unless the row exists with the expected token.
	OpReplace
)

// Op is one conditional write of an atomic commit.
type Op struct {
	Kind          OpKind
	Record        Record
	ExpectedToken string
}

func Insert(r Record) Op {
	return Op{Kind: OpInsert, Record: r}
}

func Replace(r Record, expectedToken string) Op {
	return Op{Kind: OpReplace, Record: r, ExpectedToken: expectedToken}
}

var (
	ErrConflict     = errors.New("store: conditional write failed")
	ErrCacheMiss    = errors.New("store: cache miss")
	ErrBlobNotFound = errors.New("store: blob not found")
	ErrBlobExists   = errors.New("store: blob already exists")
)

// ConflictError reports which operations of a commit failed their condition.
// Backends that stop at the first failure report a single index.
type ConflictError struct {
	Indexes []int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: conditional write failed at ops %v", e.Indexes)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Has reports whether op i failed.
func (e *ConflictError) Has(i int) bool {
	for _, idx := range e.Indexes {
		if idx == i {
			return true
		}
	}
	return false
}
