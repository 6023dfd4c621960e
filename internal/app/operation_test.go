package app

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	op := NewOperation("Publish", now)

	if op.Name != "Publish" || op.Status != "success" {
		t.Errorf("NewOperation() = %+v", op)
	}
	id, err := ulid.ParseStrict(op.ID)
	if err != nil {
		t.Fatalf("ParseStrict(%q) error = %v", op.ID, err)
	}
	if got := ulid.Time(id.Time()); !got.Equal(now) {
		t.Errorf("ULID time = %v, want %v", got, now)
	}

	op.Fail()
	if op.Status != "error" {
		t.Errorf("Status after Fail() = %q", op.Status)
	}
}

func TestNewOperation_SortsByStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var prev string
	for i := 0; i < 5; i++ {
		op := NewOperation("List", start.Add(time.Duration(i)*time.Second))
		if op.ID <= prev {
			t.Fatalf("operation %d id %s does not sort after %s", i, op.ID, prev)
		}
		prev = op.ID
	}
}
