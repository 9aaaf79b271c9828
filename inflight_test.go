package avdecc

import (
	"testing"
	"time"
)

func TestInflightTablePushFindRemove(t *testing.T) {
	var tbl InflightTable
	r1 := &InflightRecord{SequenceID: 1, Handle: 100}
	r2 := &InflightRecord{SequenceID: 2, Handle: 200}
	tbl.Push(r1)
	tbl.Push(r2)

	if got := tbl.FindBySequenceID(2); got != r2 {
		t.Fatalf("FindBySequenceID(2) = %v, want r2", got)
	}
	if got := tbl.FindByHandle(100); got != r1 {
		t.Fatalf("FindByHandle(100) = %v, want r1", got)
	}
	if got := tbl.FindBySequenceID(99); got != nil {
		t.Fatalf("FindBySequenceID(99) = %v, want nil", got)
	}

	tbl.Remove(1)
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
	if got := tbl.FindBySequenceID(1); got != nil {
		t.Fatalf("record 1 still present after Remove")
	}
}

func TestInflightTableSweep(t *testing.T) {
	var tbl InflightTable
	now := time.Unix(1000, 0)
	expired := &InflightRecord{SequenceID: 1, Deadline: now.Add(-time.Second)}
	fresh := &InflightRecord{SequenceID: 2, Deadline: now.Add(time.Second)}
	tbl.Push(expired)
	tbl.Push(fresh)

	var swept []*InflightRecord
	tbl.Sweep(now, func(r *InflightRecord) bool {
		swept = append(swept, r)
		return false // terminal timeout, remove
	})

	if len(swept) != 1 || swept[0] != expired {
		t.Fatalf("swept = %v, want [expired]", swept)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only the fresh record remains)", tbl.Len())
	}
	if tbl.FindBySequenceID(2) != fresh {
		t.Fatal("fresh record was removed by Sweep")
	}
}

func TestInflightTableSweepKeepOnRetry(t *testing.T) {
	var tbl InflightTable
	now := time.Unix(2000, 0)
	rec := &InflightRecord{SequenceID: 1, Deadline: now.Add(-time.Millisecond)}
	tbl.Push(rec)

	tbl.Sweep(now, func(r *InflightRecord) bool {
		r.Retried = true
		r.Deadline = now.Add(time.Second)
		return true // keep: this is the one allowed retry
	})

	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (retry keeps the record)", tbl.Len())
	}
	if !rec.Retried {
		t.Fatal("expected Retried to be set")
	}
}
