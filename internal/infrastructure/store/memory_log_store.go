package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryLogStore keeps rows in process. It honours the same conditional
// semantics as the persistent backends.
type MemoryLogStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Record
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{
		partitions: make(map[string]map[string]Record),
	}
}

func (s *MemoryLogStore) Get(_ context.Context, partition, row string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.partitions[partition][row]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// Commit checks every condition before applying anything, so a failed batch
// leaves no trace. All failing op indexes are reported.
func (s *MemoryLogStore) Commit(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []int
	pending := make(map[Key]bool, len(ops))
	for i, op := range ops {
		key := op.Record.Key()
		existing, exists := s.partitions[key.Partition][key.Row]
		switch op.Kind {
		case OpInsert:
			if exists || pending[key] {
				failed = append(failed, i)
			}
		case OpReplace:
			if !exists || existing.Token != op.ExpectedToken {
				failed = append(failed, i)
			}
		}
		pending[key] = true
	}
	if len(failed) > 0 {
		return &ConflictError{Indexes: failed}
	}

	for _, op := range ops {
		rec := *cloneRecord(op.Record)
		rows, ok := s.partitions[rec.Partition]
		if !ok {
			rows = make(map[string]Record)
			s.partitions[rec.Partition] = rows
		}
		rows[rec.Row] = rec
	}
	return nil
}

func (s *MemoryLogStore) Query(_ context.Context, partition, fromRow, toRow string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for row, rec := range s.partitions[partition] {
		if row >= fromRow && row <= toRow {
			out = append(out, *cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

func (s *MemoryLogStore) Delete(_ context.Context, keys []Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		rows, ok := s.partitions[k.Partition]
		if !ok {
			continue
		}
		delete(rows, k.Row)
		if len(rows) == 0 {
			delete(s.partitions, k.Partition)
		}
	}
	return nil
}

func cloneRecord(r Record) *Record {
	if r.Data != nil {
		r.Data = append([]byte(nil), r.Data...)
	}
	return &r
}
