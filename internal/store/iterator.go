package store

import (
	"fmt"

	"netscope.xyz/netscope/internal/core"
)

const iteratorBatchSize = 256

// Iterator is a lazy, restartable sequence of records for bulk export. The
// maximum rowid is captured at creation, giving snapshot isolation: records
// appended while iterating are never observed, so the sequence is finite and
// safe to walk during live capture.
type Iterator struct {
	store  *Store
	filter core.QueryFilter
	maxID  int64

	cur   Cursor
	batch []core.PacketRecord
	pos   int
	done  bool
}

// BulkExportIterator creates an iterator over records matching the filter at
// the current store state.
func (s *Store) BulkExportIterator(f core.QueryFilter) (*Iterator, error) {
	var maxID int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM packets`).Scan(&maxID); err != nil {
		return nil, fmt.Errorf("store: iterator snapshot: %w", err)
	}
	return &Iterator{store: s, filter: f, maxID: maxID}, nil
}

// Next returns the next record in timestamp-ascending order. ok is false
// once the snapshot is exhausted.
func (it *Iterator) Next() (rec core.PacketRecord, ok bool, err error) {
	if it.pos >= len(it.batch) {
		if it.done {
			return core.PacketRecord{}, false, nil
		}
		if err := it.fetch(); err != nil {
			return core.PacketRecord{}, false, err
		}
		if len(it.batch) == 0 {
			return core.PacketRecord{}, false, nil
		}
	}

	rec = it.batch[it.pos]
	it.pos++
	return rec, true, nil
}

func (it *Iterator) fetch() error {
	recs, next, done, err := it.store.queryPage(it.filter, it.cur, iteratorBatchSize, it.maxID)
	if err != nil {
		return err
	}
	it.batch = recs
	it.pos = 0
	it.cur = next
	it.done = done
	return nil
}

// Reset rewinds the iterator to the start of the same snapshot.
func (it *Iterator) Reset() {
	it.cur = Cursor{}
	it.batch = nil
	it.pos = 0
	it.done = false
}
