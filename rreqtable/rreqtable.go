// Package rreqtable implements the AODVv2 Multicast RREQ Set: a small
// fixed-capacity deduplication table that suppresses redundant or inferior
// retransmissions of recently seen Route Requests.
package rreqtable

import (
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/aodvv2/rfc5444"
	"github.com/soypat/aodvv2/seqnum"
)

// DefaultCapacity is the RFC-default RREQ_BUF size.
const DefaultCapacity = 16

// Key identifies an RREQ Set entry: the tuple is unique while present.
type Key struct {
	Orig       netip.Addr
	Targ       netip.Addr
	MetricType rfc5444.MetricType
}

type entry struct {
	key       Key
	seqNum    seqnum.Value
	metric    uint8
	timestamp time.Time
	used      bool
}

// Packet is the subset of a decoded RREQ's fields is_redundant needs.
type Packet struct {
	Orig       netip.Addr
	Targ       netip.Addr
	MetricType rfc5444.MetricType
	OrigSeqNum seqnum.Value
	OrigMetric uint8
}

// Set is the Multicast RREQ Set. The zero Set is not ready for use; call
// NewSet. All operations take the set's single exclusive lock.
type Set struct {
	mu          sync.Mutex
	entries     []entry
	maxIdleTime time.Duration
}

// NewSet returns a Set with room for capacity entries, treating entries
// older than maxIdleTime as stale (MAX_IDLETIME in spec terms).
func NewSet(capacity int, maxIdleTime time.Duration) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		entries:     make([]entry, capacity),
		maxIdleTime: maxIdleTime,
	}
}

// IsRedundant implements the dedup table of spec §4.4. It purges entries
// older than maxIdleTime, then looks up (pkt.Orig, pkt.Targ,
// pkt.MetricType):
//
//   - absent: inserts a new entry from pkt stamped now; returns false.
//   - e.seqnum < pkt.OrigSeqNum: overwrites e with pkt's values, stamped
//     now; returns true (pkt carries fresher info but is still treated as
//     a duplicate for suppression purposes, and the engine drops it).
//   - e.seqnum > pkt.OrigSeqNum: leaves e; returns true (pkt is stale).
//   - e.seqnum == pkt.OrigSeqNum and e.metric <= pkt.OrigMetric: leaves e;
//     returns true (pkt is no better).
//   - e.seqnum == pkt.OrigSeqNum and e.metric > pkt.OrigMetric: updates
//     e.metric, stamped now; returns false (an improvement worth
//     forwarding).
//
// If the table is full and no matching or stale slot is available to
// reuse, the new entry for the absent case is silently not recorded
// (matching the original implementation's behavior of never evicting a
// live entry); IsRedundant still returns false in that case since the
// packet itself is not a duplicate of anything recorded.
func (s *Set) IsRedundant(pkt Packet, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeStale(now)

	key := Key{Orig: pkt.Orig, Targ: pkt.Targ, MetricType: pkt.MetricType}
	idx := s.find(key)
	if idx < 0 {
		s.insert(key, pkt.OrigSeqNum, pkt.OrigMetric, now)
		return false
	}

	e := &s.entries[idx]
	switch seqnum.Cmp(e.seqNum, pkt.OrigSeqNum) {
	case -1:
		e.seqNum = pkt.OrigSeqNum
		e.metric = pkt.OrigMetric
		e.timestamp = now
		return true
	case 1:
		return true
	default:
		if e.metric <= pkt.OrigMetric {
			return true
		}
		e.metric = pkt.OrigMetric
		e.timestamp = now
		return false
	}
}

func (s *Set) find(key Key) int {
	for i := range s.entries {
		if s.entries[i].used && s.entries[i].key == key {
			return i
		}
	}
	return -1
}

func (s *Set) insert(key Key, sn seqnum.Value, metric uint8, now time.Time) {
	for i := range s.entries {
		if !s.entries[i].used {
			s.entries[i] = entry{key: key, seqNum: sn, metric: metric, timestamp: now, used: true}
			return
		}
	}
	// Table full: per the original implementation, a new entry is simply
	// not recorded rather than evicting a live one.
}

func (s *Set) purgeStale(now time.Time) {
	for i := range s.entries {
		if s.entries[i].used && now.Sub(s.entries[i].timestamp) > s.maxIdleTime {
			s.entries[i] = entry{}
		}
	}
}

// Len reports the number of live entries, purging stale ones first.
func (s *Set) Len(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeStale(now)
	n := 0
	for i := range s.entries {
		if s.entries[i].used {
			n++
		}
	}
	return n
}
