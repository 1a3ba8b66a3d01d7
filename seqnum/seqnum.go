// Package seqnum implements the AODVv2 Sequence Number: a 16-bit counter
// that never takes the value 0 (0 denotes "unknown") and wraps from 65535
// back to 1.
package seqnum

import "sync"

// Value is a 16-bit AODVv2 sequence number. The zero Value means "unknown"
// and must never be produced by Counter.
type Value uint16

// Unknown is the reserved SeqNum value meaning "no information".
const Unknown Value = 0

// Cmp compares two sequence numbers as unsigned integers, ignoring
// wrap-around (the draft does not define modulo comparison for AODVv2).
// Callers must treat either operand being Unknown as "no information".
func Cmp(a, b Value) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Counter is a monotonically advancing SeqNum counter shared by all
// RteMsgs this router originates. The zero Counter is not ready for use;
// call Init first.
type Counter struct {
	mu  sync.Mutex
	val Value
}

// Init resets the counter to its initial value, 1.
func (c *Counter) Init() {
	c.mu.Lock()
	c.val = 1
	c.mu.Unlock()
}

// Get returns the current SeqNum without advancing it.
func (c *Counter) Get() Value {
	c.mu.Lock()
	v := c.val
	c.mu.Unlock()
	return v
}

// Inc advances the counter by one, wrapping from 65535 directly to 1 and
// coercing an observed 0 to 1 (0 is reserved). Returns the new value.
func (c *Counter) Inc() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.val == 0 || c.val == 65535 {
		c.val = 1
	} else {
		c.val++
	}
	return c.val
}

// GetThenInc atomically reads the current value and advances the counter,
// matching the RFC requirement that an originating router reads its SeqNum
// and increments it for the next origination as a single step.
func (c *Counter) GetThenInc() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.val
	if v == 0 {
		v = 1
		c.val = 1
	}
	if c.val == 65535 {
		c.val = 1
	} else {
		c.val++
	}
	return v
}
