// Package routing implements the AODVv2 Routing Information Set: the
// routing table proper, with entry lifecycle driven lazily by time and by
// route-comparison on each accepted update.
package routing

import (
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/aodvv2/rfc5444"
	"github.com/soypat/aodvv2/seqnum"
)

// State is a Routing Entry's position in its lifecycle state machine.
type State uint8

const (
	Active State = iota
	Idle
	Expired
	Broken
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Idle:
		return "Idle"
	case Expired:
		return "Expired"
	case Broken:
		return "Broken"
	default:
		return "unknown"
	}
}

// Entry is one Routing Information Set entry.
type Entry struct {
	Addr       netip.Addr
	SeqNum     seqnum.Value
	NextHop    netip.Addr
	LastUsed   time.Time
	Expiration time.Time
	MetricType rfc5444.MetricType
	Metric     uint8
	State      State

	used bool
}

// NodeData is the subset of a Node Descriptor offers_improvement and the
// entry fillers need.
type NodeData struct {
	Addr      netip.Addr
	Metric    uint8
	SeqNum    seqnum.Value
	HasSeqNum bool
}

// DefaultMaxEntries is the RFC-suggested minimum MAX_ROUTING_ENTRIES.
const DefaultMaxEntries = 8

// Config carries the timing constants governing the lifecycle state
// machine (spec §3's constants table).
type Config struct {
	ActiveInterval    time.Duration
	MaxIdleTime       time.Duration
	MaxSeqNumLifetime time.Duration
}

// DefaultConfig returns the RFC-default timing constants.
func DefaultConfig() Config {
	return Config{
		ActiveInterval:    5 * time.Second,
		MaxIdleTime:       250 * time.Second,
		MaxSeqNumLifetime: 300 * time.Second,
	}
}

func (c Config) validity() time.Duration {
	return c.ActiveInterval + c.MaxIdleTime
}

// Set is the Routing Information Set. The zero Set is not ready for use;
// call NewSet. All operations take the set's single exclusive lock.
type Set struct {
	mu      sync.Mutex
	entries []Entry
	cfg     Config
}

// NewSet returns a Set with room for maxEntries routes, governed by cfg.
func NewSet(maxEntries int, cfg Config) *Set {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Set{entries: make([]Entry, maxEntries), cfg: cfg}
}

// Fill populates e as a fresh entry learned from an accepted RREQ's
// OrigNode (or an RREP's TargNode — the caller passes whichever node
// descriptor applies), per spec §4.5: metric is node.metric plus the
// link cost already folded in by the caller, state starts Active, and
// the entry's expiration is timestamp + ACTIVE_INTERVAL + MAX_IDLETIME.
func (s *Set) Fill(e *Entry, node NodeData, nextHop netip.Addr, metricType rfc5444.MetricType, metric uint8, timestamp time.Time) {
	e.Addr = node.Addr
	e.SeqNum = node.SeqNum
	e.NextHop = nextHop
	e.LastUsed = timestamp
	e.Expiration = timestamp.Add(s.cfg.validity())
	e.MetricType = metricType
	e.Metric = metric
	e.State = Active
	e.used = true
}

// Add inserts entry only if no entry with matching (Addr, MetricType)
// exists; otherwise it is a no-op, per spec §4.5. If the table is full,
// stale entries are purged first; if still full, the oldest Expired entry
// is evicted (the MAY option in spec §4.7); otherwise the insert is
// silently discarded.
func (s *Set) Add(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := entry.LastUsed
	s.resetStale(now)

	if idx := s.findLocked(entry.Addr, entry.MetricType); idx >= 0 {
		return
	}

	for i := range s.entries {
		if !s.entries[i].used {
			s.entries[i] = entry
			return
		}
	}

	if i := s.oldestExpiredLocked(); i >= 0 {
		s.entries[i] = entry
		return
	}
	// Table full with no Expired entry to reclaim: silently discard.
}

// Get returns the entry matching (addr, metricType), purging stale entries
// across the whole table first (spec §4.5's "first purge-if-stale the
// scanned entries").
func (s *Set) Get(addr netip.Addr, metricType rfc5444.MetricType, now time.Time) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetStale(now)
	idx := s.findLocked(addr, metricType)
	if idx < 0 {
		return Entry{}, false
	}
	return s.entries[idx], true
}

// Update writes back an updated entry at the slot matching (addr,
// metricType), used by the engine after confirming offers_improvement.
// It is a no-op if no matching entry exists.
func (s *Set) Update(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.findLocked(entry.Addr, entry.MetricType)
	if idx < 0 {
		return
	}
	s.entries[idx] = entry
}

// Delete removes the entry matching (addr, metricType), a no-op if absent.
func (s *Set) Delete(addr netip.Addr, metricType rfc5444.MetricType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.findLocked(addr, metricType)
	if idx >= 0 {
		s.entries[idx] = Entry{}
	}
}

// Len reports the number of live entries, purging stale ones first.
func (s *Set) Len(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetStale(now)
	n := 0
	for i := range s.entries {
		if s.entries[i].used {
			n++
		}
	}
	return n
}

// NextHop is a convenience wrapper returning Get(...).NextHop.
func (s *Set) NextHop(addr netip.Addr, metricType rfc5444.MetricType, now time.Time) (netip.Addr, bool) {
	e, ok := s.Get(addr, metricType, now)
	if !ok {
		return netip.Addr{}, false
	}
	return e.NextHop, true
}

// OffersImprovement reports whether node carries strictly better routing
// information than entry, per spec §4.5:
// cmp(node.seqnum, entry.seqnum) >= 0 AND (node.metric < entry.metric OR
// entry.state == Broken).
func OffersImprovement(entry Entry, node NodeData) bool {
	if !node.HasSeqNum {
		return false
	}
	if seqnum.Cmp(node.SeqNum, entry.SeqNum) < 0 {
		return false
	}
	return node.Metric < entry.Metric || entry.State == Broken
}

func (s *Set) findLocked(addr netip.Addr, metricType rfc5444.MetricType) int {
	for i := range s.entries {
		if s.entries[i].used && s.entries[i].Addr == addr && s.entries[i].MetricType == metricType {
			return i
		}
	}
	return -1
}

func (s *Set) oldestExpiredLocked() int {
	oldest := -1
	for i := range s.entries {
		if !s.entries[i].used || s.entries[i].State != Expired {
			continue
		}
		if oldest < 0 || s.entries[i].LastUsed.Before(s.entries[oldest].LastUsed) {
			oldest = i
		}
	}
	return oldest
}

// resetStale advances each entry's state machine relative to now, purging
// entries whose Expired age exceeds MaxSeqNumLifetime. Mirrors the
// original implementation's lazy-on-access state transitions.
func (s *Set) resetStale(now time.Time) {
	for i := range s.entries {
		e := &s.entries[i]
		if !e.used {
			continue
		}
		if e.State == Active && now.Sub(e.LastUsed) > s.cfg.ActiveInterval {
			e.State = Idle
			e.LastUsed = now
		}
		if e.State == Idle && !now.Before(e.Expiration) {
			e.State = Expired
			e.LastUsed = now
		}
		if now.Sub(e.LastUsed) > s.cfg.MaxSeqNumLifetime {
			*e = Entry{}
		}
	}
}
