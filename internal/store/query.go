package store

import (
	"fmt"

	"netscope.xyz/netscope/internal/core"
)

// Cursor marks a position in the timestamp-ascending record order. The zero
// Cursor starts from the beginning. Keyed on (ts_nanos, id) so pages are
// stable under concurrent appends: a page never repeats or skips records
// that existed when the cursor was issued.
type Cursor struct {
	TsNanos int64
	ID      int64
}

// Zero reports whether the cursor is the start position.
func (c Cursor) Zero() bool {
	return c.TsNanos == 0 && c.ID == 0
}

const defaultPageSize = 100

// Query returns one page of records matching the filter, ordered by
// timestamp ascending, and the cursor for the next page. done is true when
// no further pages exist.
func (s *Store) Query(f core.QueryFilter, cur Cursor, limit int) (recs []core.PacketRecord, next Cursor, done bool, err error) {
	return s.queryPage(f, cur, limit, 0)
}

// queryPage is the shared pagination path. maxID > 0 bounds the page to a
// rowid snapshot (bulk export isolation); 0 means no bound.
func (s *Store) queryPage(f core.QueryFilter, cur Cursor, limit int, maxID int64) (recs []core.PacketRecord, next Cursor, done bool, err error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	where, args := buildWhere(f)
	if where == "" {
		where = " WHERE 1=1"
	}
	where += " AND (ts_nanos > ? OR (ts_nanos = ? AND id > ?))"
	args = append(args, cur.TsNanos, cur.TsNanos, cur.ID)
	if maxID > 0 {
		where += " AND id <= ?"
		args = append(args, maxID)
	}

	query := "SELECT " + recordColumns + " FROM packets" + where +
		" ORDER BY ts_nanos ASC, id ASC LIMIT ?"
	args = append(args, limit+1) // one extra row to detect the last page

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, cur, false, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, cur, false, fmt.Errorf("store: scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, cur, false, err
	}

	done = len(recs) <= limit
	if !done {
		recs = recs[:limit]
	}
	if len(recs) > 0 {
		last := recs[len(recs)-1]
		next = Cursor{TsNanos: last.Timestamp.UnixNano(), ID: last.ID}
	} else {
		next = cur
	}
	return recs, next, done, nil
}

// RecentPackets returns up to limit records, most recent first.
func (s *Store) RecentPackets(limit int) ([]core.PacketRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}

	rows, err := s.db.Query(
		"SELECT "+recordColumns+" FROM packets ORDER BY ts_nanos DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent packets: %w", err)
	}
	defer rows.Close()

	var recs []core.PacketRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
