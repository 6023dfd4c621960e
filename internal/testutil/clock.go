package testutil

import (
	"fmt"
	"sync"
	"time"

	"vfs-go/internal/vfs"
)

// PublishEpoch is the time a FixedClock starts at.
var PublishEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// StubClock is a vfs.Clock that only moves when told to. Safe for
// concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ vfs.Clock = (*StubClock)(nil)

// FixedClock returns a StubClock set to PublishEpoch.
func FixedClock() *StubClock {
	return &StubClock{now: PublishEpoch}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Publish tests advance between
// publishes so backup and history dates differ.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// firstStubID keeps generated ids clear of the seeded root folder ids.
const firstStubID = 0x100

// StubIDGenerator issues sequential UUID-shaped structure, resource and
// content ids, starting at 00000000-0000-0000-0000-000000000100.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ vfs.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{next: firstStubID}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("00000000-0000-0000-0000-%012x", g.next)
	g.next++
	return id
}
