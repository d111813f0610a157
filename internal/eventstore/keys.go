package eventstore

import (
	"fmt"
	"strings"
)

// StreamRowKey is the row holding an aggregate's head version and
// concurrency token.
const StreamRowKey = "StreamVersion"

const (
	markerPrefix = "Idempotency-"
	maxRowKey    = "\uffff"
)

// keyspace derives row keys and blob names. Changing any of them orphans
// existing data.
type keyspace struct {
	typeName    string
	eventPrefix string
	suffixLen   int
}

func (k keyspace) eventRow(version int) string {
	return fmt.Sprintf("%s%0*d", k.eventPrefix, k.suffixLen, version)
}

// eventRange returns the row bounds for versions from..to. A non-positive
// to leaves the range open.
func (k keyspace) eventRange(from, to int) (string, string) {
	if from < 1 {
		from = 1
	}
	if to <= 0 {
		return k.eventRow(from), k.eventPrefix + strings.Repeat("9", k.suffixLen)
	}
	return k.eventRow(from), k.eventRow(to)
}

func (k keyspace) isEventRow(row string) bool {
	return strings.HasPrefix(row, k.eventPrefix)
}

func (k keyspace) markerRow(hash string) string {
	return markerPrefix + hash
}

func (k keyspace) blobPrefix(id string) string {
	return k.typeName + "/" + id + "/"
}

func (k keyspace) snapshotBlob(id string) string {
	return k.blobPrefix(id) + "snapshot.json"
}

func (k keyspace) largeEventBlob(id, eventRow string) string {
	return k.blobPrefix(id) + eventRow + ".json"
}

func (k keyspace) cacheKey(id string) string {
	return k.typeName + ":" + id
}
