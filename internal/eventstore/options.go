package eventstore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheMode controls which directions of the cache-aside path are active.
type CacheMode int

const (
	CacheGetAndStore CacheMode = iota
	CacheGetOnly
	CacheStoreOnly
	CacheNone
)

func (m CacheMode) String() string {
	switch m {
	case CacheGetAndStore:
		return "get-and-store"
	case CacheGetOnly:
		return "get-only"
	case CacheStoreOnly:
		return "store-only"
	case CacheNone:
		return "none"
	}
	return fmt.Sprintf("CacheMode(%d)", int(m))
}

// ParseCacheMode accepts the names returned by CacheMode.String.
func ParseCacheMode(s string) (CacheMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "get-and-store", "both":
		return CacheGetAndStore, nil
	case "get-only", "get":
		return CacheGetOnly, nil
	case "store-only", "store":
		return CacheStoreOnly, nil
	case "none", "off":
		return CacheNone, nil
	}
	return 0, fmt.Errorf("unknown cache mode %q", s)
}

func (m CacheMode) reads() bool  { return m == CacheGetAndStore || m == CacheGetOnly }
func (m CacheMode) writes() bool { return m == CacheGetAndStore || m == CacheStoreOnly }

// DeletedMode controls how reads treat soft-deleted aggregates.
type DeletedMode int

const (
	// DeletedAsNil returns no aggregate and no error.
	DeletedAsNil DeletedMode = iota
	// DeletedThrow returns ErrAggregateDeleted.
	DeletedThrow
	// DeletedReturn returns the deleted aggregate.
	DeletedReturn
)

// LockedMode controls how Save treats locked aggregates.
type LockedMode int

const (
	// LockedThrow returns ErrAggregateLocked.
	LockedThrow LockedMode = iota
	// LockedReturnFalse returns an unsaved result and no error.
	LockedReturnFalse
)

// OperationContext holds the per-call flags. The zero value is the default
// behaviour.
type OperationContext struct {
	DeletedMode               DeletedMode
	LockedMode                LockedMode
	SkipSnapshot              bool
	SkipCache                 bool
	ValidateIdempotencyMarker bool
	PermanentlyDelete         bool
}

// Option adjusts the OperationContext of one call.
type Option func(*OperationContext)

func WithDeletedMode(m DeletedMode) Option {
	return func(oc *OperationContext) { oc.DeletedMode = m }
}

func WithLockedMode(m LockedMode) Option {
	return func(oc *OperationContext) { oc.LockedMode = m }
}

// SkipSnapshot forces a full replay on read.
func SkipSnapshot() Option {
	return func(oc *OperationContext) { oc.SkipSnapshot = true }
}

// SkipCache bypasses the cache in both directions.
func SkipCache() Option {
	return func(oc *OperationContext) { oc.SkipCache = true }
}

// ValidateIdempotencyMarker enables or disables the marker lookup before a
// commit. The lookup costs one read per save.
func ValidateIdempotencyMarker(enabled bool) Option {
	return func(oc *OperationContext) { oc.ValidateIdempotencyMarker = enabled }
}

// Permanently makes Delete erase the aggregate instead of soft-deleting it.
func Permanently() Option {
	return func(oc *OperationContext) { oc.PermanentlyDelete = true }
}

// Options configures an Engine. They are copied at construction and never
// change afterwards.
type Options struct {
	SnapshotInterval                 int
	MaxEventCountOnSave              int
	RemoveDeletedFromCache           bool
	CacheMode                        CacheMode
	DefaultCacheSlidingDuration      time.Duration
	EventPrefix                      string
	EventSuffixLength                int
	RequiresValidPrincipalIdentifier bool
	LargeEventThreshold              int
	DeleteBatchSize                  int
	CacheEvictTimeout                time.Duration
	Defaults                         OperationContext
}

func DefaultOptions() Options {
	return Options{
		SnapshotInterval:                 1,
		MaxEventCountOnSave:              1000,
		RemoveDeletedFromCache:           true,
		CacheMode:                        CacheGetAndStore,
		DefaultCacheSlidingDuration:      60 * time.Minute,
		EventPrefix:                      "Event-",
		EventSuffixLength:                10,
		RequiresValidPrincipalIdentifier: true,
		LargeEventThreshold:              32000,
		DeleteBatchSize:                  20,
		CacheEvictTimeout:                5 * time.Second,
	}
}

func (o Options) Validate() error {
	var errs []error
	if o.SnapshotInterval < 1 {
		errs = append(errs, errors.New("snapshot interval must be at least 1"))
	}
	if o.MaxEventCountOnSave < 1 {
		errs = append(errs, errors.New("max event count on save must be at least 1"))
	}
	if o.EventPrefix == "" {
		errs = append(errs, errors.New("event prefix is required"))
	}
	if o.EventSuffixLength < 1 || o.EventSuffixLength > 19 {
		errs = append(errs, errors.New("event suffix length must be between 1 and 19"))
	}
	if o.LargeEventThreshold < 1 {
		errs = append(errs, errors.New("large event threshold must be positive"))
	}
	if o.DeleteBatchSize < 1 {
		errs = append(errs, errors.New("delete batch size must be at least 1"))
	}
	if o.CacheEvictTimeout <= 0 {
		errs = append(errs, errors.New("cache evict timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (o Options) operation(opts []Option) OperationContext {
	oc := o.Defaults
	for _, opt := range opts {
		opt(&oc)
	}
	return oc
}
