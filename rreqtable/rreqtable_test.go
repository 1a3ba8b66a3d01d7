package rreqtable

import (
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/aodvv2/rfc5444"
	"github.com/soypat/aodvv2/seqnum"
)

func testPacket(t *testing.T, seqNum, metric uint8) Packet {
	t.Helper()
	return Packet{
		Orig:       netip.MustParseAddr("2001:db8::2"),
		Targ:       netip.MustParseAddr("2001:db8::1"),
		MetricType: rfc5444.MetricHopCount,
		OrigSeqNum: seqnum.Value(seqNum),
		OrigMetric: metric,
	}
}

func TestFirstSeenNotRedundant(t *testing.T) {
	s := NewSet(4, 250*time.Second)
	now := time.Unix(0, 0)
	pkt := testPacket(t, 5, 4)
	if s.IsRedundant(pkt, now) {
		t.Fatal("first reception reported redundant")
	}
}

func TestExactRepeatIsRedundant(t *testing.T) {
	s := NewSet(4, 250*time.Second)
	now := time.Unix(0, 0)
	pkt := testPacket(t, 5, 4)
	if s.IsRedundant(pkt, now) {
		t.Fatal("first reception reported redundant")
	}
	if !s.IsRedundant(pkt, now.Add(time.Second)) {
		t.Fatal("exact repeat not reported redundant")
	}
}

func TestSameSeqNumBetterMetricForwards(t *testing.T) {
	s := NewSet(4, 250*time.Second)
	now := time.Unix(0, 0)
	pkt := testPacket(t, 5, 10)
	if s.IsRedundant(pkt, now) {
		t.Fatal("first reception reported redundant")
	}
	better := testPacket(t, 5, 4)
	if s.IsRedundant(better, now.Add(time.Second)) {
		t.Fatal("improving same-seqnum packet reported redundant, want false")
	}
	// Subsequent identical packet should now be redundant against the
	// improved entry.
	if !s.IsRedundant(better, now.Add(2*time.Second)) {
		t.Fatal("repeat of the improving packet should now be redundant")
	}
}

func TestStaleEntryOverwritten(t *testing.T) {
	s := NewSet(4, 10*time.Second)
	now := time.Unix(0, 0)
	pkt := testPacket(t, 5, 4)
	s.IsRedundant(pkt, now)
	if s.Len(now.Add(20*time.Second)) != 0 {
		t.Fatal("stale entry not purged")
	}
	if s.IsRedundant(pkt, now.Add(20*time.Second)) {
		t.Fatal("packet after purge window reported redundant, want false (fresh entry)")
	}
}

func TestFullTableDoesNotEvictLiveEntry(t *testing.T) {
	s := NewSet(1, 250*time.Second)
	now := time.Unix(0, 0)
	pkt := testPacket(t, 5, 4)
	s.IsRedundant(pkt, now)

	other := Packet{
		Orig:       netip.MustParseAddr("2001:db8::3"),
		Targ:       netip.MustParseAddr("2001:db8::9"),
		MetricType: rfc5444.MetricHopCount,
		OrigSeqNum: 1,
		OrigMetric: 1,
	}
	// Table is full; the existing entry must survive.
	if s.IsRedundant(other, now) {
		t.Fatal("unrecorded packet reported redundant")
	}
	if s.find(Key{pkt.Orig, pkt.Targ, pkt.MetricType}) < 0 {
		t.Fatal("existing live entry was evicted by insert attempt on full table")
	}
}
