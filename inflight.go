package avdecc

import (
	"time"

	"github.com/google/uuid"
)

// NotificationHandle is the opaque value a host call supplies and gets
// back on the eventual notification. The core
// never interprets it.
type NotificationHandle uint64

// NoNotification is the sentinel notification handle for commands the
// caller does not want callbacks for.
const NoNotification NotificationHandle = 0

// InflightRecord is one outstanding command. The frame is kept
// verbatim so a retry retransmits identical bytes: same sequence id,
// same bytes.
type InflightRecord struct {
	SequenceID    uint16
	Frame         []byte
	Handle        NotificationHandle
	Deadline      time.Time
	Retried       bool
	NotifyDesired bool
	TraceID       uuid.UUID

	// Routing metadata, set by the owning machine so a timeout/response
	// notification can be built without re-parsing Frame.
	EntityID        EUI64
	CommandType     uint16
	DescriptorType  DescriptorType
	DescriptorIndex uint16
}

func (r *InflightRecord) expired(now time.Time) bool {
	return !r.Deadline.After(now)
}

// InflightTable is an ordered collection of outstanding requests for a
// single controller machine. The scan is linear — the table
// holds at most a handful of commands per entity, so a hash index is not
// required for correctness.
type InflightTable struct {
	records []*InflightRecord
}

// Push appends a new inflight record.
func (t *InflightTable) Push(r *InflightRecord) {
	t.records = append(t.records, r)
}

// FindBySequenceID returns the inflight record matching a sequence-id, or
// nil. Matching is by sequence-id only, never by frame contents.
func (t *InflightTable) FindBySequenceID(seq uint16) *InflightRecord {
	for _, r := range t.records {
		if r.SequenceID == seq {
			return r
		}
	}
	return nil
}

// FindByHandle answers "is a command still pending for this handle?"
func (t *InflightTable) FindByHandle(h NotificationHandle) *InflightRecord {
	for _, r := range t.records {
		if r.Handle == h {
			return r
		}
	}
	return nil
}

// Remove deletes a record by sequence-id, used when a response matches.
// Records removed on final timeout are dropped by Sweep instead.
func (t *InflightTable) Remove(seq uint16) {
	for i, r := range t.records {
		if r.SequenceID == seq {
			t.records = append(t.records[:i], t.records[i+1:]...)
			return
		}
	}
}

// Len reports the number of outstanding records.
func (t *InflightTable) Len() int { return len(t.records) }

// Sweep calls fn for every record whose deadline has passed, in order. fn
// returns true to keep the record (it started a retry) or false to remove
// it (terminal timeout). This is the single entry point the AECP and ACMP
// machines use to drive their timeout sweep.
func (t *InflightTable) Sweep(now time.Time, fn func(*InflightRecord) (keep bool)) {
	kept := t.records[:0]
	for _, r := range t.records {
		if r.expired(now) {
			if fn(r) {
				kept = append(kept, r)
			}
			continue
		}
		kept = append(kept, r)
	}
	t.records = kept
}

// All returns a snapshot slice of every outstanding record, oldest first.
func (t *InflightTable) All() []*InflightRecord {
	out := make([]*InflightRecord, len(t.records))
	copy(out, t.records)
	return out
}
