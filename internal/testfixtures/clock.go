package testfixtures

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// Cairo is the reference timezone used by every fixture.
var Cairo = mustLocation("Africa/Cairo")

// ReferenceTime is Tuesday 2024-01-09 13:45 Cairo, fifteen minutes before the
// default fixture slot opens.
func ReferenceTime() time.Time {
	return time.Date(2024, time.January, 9, 13, 45, 0, 0, Cairo)
}

// CairoAt parses "YYYY-MM-DD HH:MM" as a Cairo wall time.
func CairoAt(value string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", value, Cairo)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: bad wall time %q: %v", value, err))
	}
	return t
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: load %s: %v", name, err))
	}
	return loc
}

// Clock is a settable time source. Services capture it once per operation.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc adapts the clock to the func() time.Time services accept.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}

// IDGenerator yields "<prefix>-<n>" identifiers.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc adapts the generator to the func() string services accept.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}
