package event

// Reserved logical names. The "$" prefix keeps them out of the way of
// application event names.
const (
	DeletedName    = "$deleted"
	RestoredName   = "$restored"
	LargeEventName = "$large"
)

// Deleted marks a soft delete of the aggregate.
type Deleted struct{}

func (Deleted) EventName() string { return DeletedName }

// Restored reverses a previous soft delete.
type Restored struct{}

func (Restored) EventName() string { return RestoredName }

// Unknown stands in for a stored event whose type could not be resolved.
// Replay skips it but still advances the aggregate version.
type Unknown struct {
	Name string
	Raw  []byte
}

func (u Unknown) EventName() string { return u.Name }

// LargePointer is persisted in place of a payload that exceeded the inline
// size limit. The full payload lives in blob storage.
type LargePointer struct {
	RealTypeName string `json:"realTypeName"`
}

func (LargePointer) EventName() string { return LargeEventName }

// IsMarker reports whether data is one of the lifecycle markers handled by the
// aggregate base rather than by the aggregate itself.
func IsMarker(data Named) bool {
	switch data.(type) {
	case Deleted, Restored:
		return true
	}
	return false
}

// ContainsDeleted reports whether the batch holds a delete marker.
func ContainsDeleted(events []Event) bool {
	for _, e := range events {
		if _, ok := e.Data.(Deleted); ok {
			return true
		}
	}
	return false
}

// ContainsRestored reports whether the batch holds a restore marker.
func ContainsRestored(events []Event) bool {
	for _, e := range events {
		if _, ok := e.Data.(Restored); ok {
			return true
		}
	}
	return false
}
