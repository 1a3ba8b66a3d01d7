package engine

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/aodvv2/config"
	"github.com/soypat/aodvv2/rfc5444"
	"github.com/soypat/aodvv2/routing"
)

// fakeTransport is a Transport that never produces inbound traffic and
// records nothing; these tests drive HandlePacket and the mailbox directly
// rather than running the receiver/sender tasks.
type fakeTransport struct{}

func (fakeTransport) RecvFrom(buf []byte) (int, netip.Addr, error) {
	<-make(chan struct{})
	return 0, netip.Addr{}, nil
}

func (fakeTransport) SendTo(buf []byte, dst netip.Addr) error { return nil }

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }

func testConfig() config.Constants {
	cfg := config.Default()
	cfg.MaxClients = 4
	return cfg
}

// TestHandleRREQSelfAsTarget covers scenario S1: a router receiving an RREQ
// for which it is the TargNode replies with an RREP instead of forwarding.
func TestHandleRREQSelfAsTarget(t *testing.T) {
	self := mustAddr("fe80::1")
	orig := mustAddr("fe80::2")
	tr := &fakeTransport{}
	e := New(self, tr, testConfig(), nil, nil)

	pkt := PacketData{
		MsgType:    rfc5444.MsgTypeRREQ,
		HopLimit:   10,
		MetricType: rfc5444.MetricHopCount,
		Orig:       NodeData{Addr: orig, Metric: 0, SeqNum: 1, HasSeqNum: true},
		Targ:       NodeData{Addr: self},
		Sender:     orig,
		Timestamp:  time.Now(),
	}
	e.handleRREQ(pkt)

	select {
	case msg := <-e.mailbox:
		if msg.kind != outboundRREP {
			t.Fatalf("kind = %v, want outboundRREP", msg.kind)
		}
		if msg.pkt.Targ.SeqNum == 0 {
			t.Fatal("RREP TargNode seqnum not assigned")
		}
	default:
		t.Fatal("no RREP enqueued")
	}

	if _, ok := e.routes.Get(orig, rfc5444.MetricHopCount, time.Now()); !ok {
		t.Fatal("route to OrigNode not installed")
	}
}

// TestForwardRREQ covers scenario S2: a router that is neither OrigNode nor
// TargNode forwards the RREQ with an incremented metric.
func TestForwardRREQ(t *testing.T) {
	self := mustAddr("fe80::1")
	orig := mustAddr("fe80::2")
	targ := mustAddr("fe80::3")
	tr := &fakeTransport{}
	e := New(self, tr, testConfig(), nil, nil)

	pkt := PacketData{
		MsgType:    rfc5444.MsgTypeRREQ,
		HopLimit:   10,
		MetricType: rfc5444.MetricHopCount,
		Orig:       NodeData{Addr: orig, Metric: 3, SeqNum: 1, HasSeqNum: true},
		Targ:       NodeData{Addr: targ},
		Sender:     orig,
		Timestamp:  time.Now(),
	}
	e.handleRREQ(pkt)

	select {
	case msg := <-e.mailbox:
		if msg.kind != outboundRREQ {
			t.Fatalf("kind = %v, want outboundRREQ", msg.kind)
		}
		if msg.pkt.Orig.Metric != 4 {
			t.Fatalf("forwarded metric = %d, want 4", msg.pkt.Orig.Metric)
		}
	default:
		t.Fatal("no forwarded RREQ enqueued")
	}
}

// TestRedundantRREQDropped covers invariant #5's consuming side: a second,
// non-improving copy of the same RREQ is dropped rather than reprocessed.
func TestRedundantRREQDropped(t *testing.T) {
	self := mustAddr("fe80::1")
	orig := mustAddr("fe80::2")
	targ := mustAddr("fe80::3")
	tr := &fakeTransport{}
	e := New(self, tr, testConfig(), nil, nil)

	mk := func() PacketData {
		return PacketData{
			MsgType:    rfc5444.MsgTypeRREQ,
			HopLimit:   10,
			MetricType: rfc5444.MetricHopCount,
			Orig:       NodeData{Addr: orig, Metric: 1, SeqNum: 5, HasSeqNum: true},
			Targ:       NodeData{Addr: targ},
			Sender:     orig,
			Timestamp:  time.Now(),
		}
	}
	e.handleRREQ(mk())
	<-e.mailbox // drain the forwarded copy

	e.handleRREQ(mk())
	select {
	case <-e.mailbox:
		t.Fatal("redundant RREQ was forwarded a second time")
	default:
	}
}

// TestImprovingRREPForwarded covers scenario S4: an RREP offering a better
// route than one already installed is accepted and forwarded.
func TestImprovingRREPForwarded(t *testing.T) {
	self := mustAddr("fe80::1")
	origRouter := mustAddr("fe80::9") // the node this router learned OrigNode through
	orig := mustAddr("fe80::2")       // the discovery's originator, a non-client
	targ := mustAddr("fe80::3")
	tr := &fakeTransport{}
	e := New(self, tr, testConfig(), nil, nil)

	now := time.Now()
	// Seed a next hop toward orig so the forwarded RREP has somewhere to go.
	var existing routing.Entry
	e.routes.Fill(&existing, routing.NodeData{Addr: orig, Metric: 5, SeqNum: 1, HasSeqNum: true}, origRouter, rfc5444.MetricHopCount, 5, now)
	e.routes.Add(existing)
	// Seed a worse route to targ for the RREP to improve on.
	var worse routing.Entry
	e.routes.Fill(&worse, routing.NodeData{Addr: targ, Metric: 10, SeqNum: 7, HasSeqNum: true}, mustAddr("fe80::5"), rfc5444.MetricHopCount, 10, now)
	e.routes.Add(worse)

	pkt := PacketData{
		MsgType:    rfc5444.MsgTypeRREP,
		HopLimit:   10,
		MetricType: rfc5444.MetricHopCount,
		Orig:       NodeData{Addr: orig, SeqNum: 1, HasSeqNum: true},
		Targ:       NodeData{Addr: targ, Metric: 2, SeqNum: 10, HasSeqNum: true},
		Sender:     mustAddr("fe80::4"),
		Timestamp:  now,
	}
	e.handleRREP(pkt)

	select {
	case msg := <-e.mailbox:
		if msg.kind != outboundRREP {
			t.Fatalf("kind = %v, want outboundRREP", msg.kind)
		}
		if msg.nextHop != origRouter {
			t.Fatalf("next hop = %v, want %v", msg.nextHop, origRouter)
		}
	default:
		t.Fatal("no forwarded RREP enqueued")
	}

	rt, ok := e.routes.Get(targ, rfc5444.MetricHopCount, now)
	if !ok || rt.Metric != 3 || rt.NextHop != mustAddr("fe80::4") {
		t.Fatalf("route to TargNode = %+v, want metric 3 via fe80::4", rt)
	}
}

// TestMetricCeilingDropped covers invariant #7's metric-ceiling drop law.
func TestMetricCeilingDropped(t *testing.T) {
	self := mustAddr("fe80::1")
	orig := mustAddr("fe80::2")
	targ := mustAddr("fe80::3")
	tr := &fakeTransport{}
	cfg := testConfig()
	e := New(self, tr, cfg, nil, nil)

	pkt := PacketData{
		MsgType:    rfc5444.MsgTypeRREQ,
		HopLimit:   10,
		MetricType: rfc5444.MetricHopCount,
		Orig:       NodeData{Addr: orig, Metric: rfc5444.MaxHopCount - 1, SeqNum: 1, HasSeqNum: true},
		Targ:       NodeData{Addr: targ},
		Sender:     orig,
		Timestamp:  time.Now(),
	}
	e.handleRREQ(pkt)

	select {
	case <-e.mailbox:
		t.Fatal("RREQ at metric ceiling was forwarded")
	default:
	}
}

// TestHandlePacketRoundTrip exercises HandlePacket end to end: encode a real
// RREQ frame with the Writer and feed it through the Reader-driven dispatch.
func TestHandlePacketRoundTrip(t *testing.T) {
	self := mustAddr("fe80::1")
	orig := mustAddr("fe80::2")
	targ := mustAddr("fe80::3")
	tr := &fakeTransport{}
	e := New(self, tr, testConfig(), nil, nil)

	buf := make([]byte, 128)
	n, err := (rfc5444.Writer{}).Encode(buf, rfc5444.BuildRequest{
		MsgType:    rfc5444.MsgTypeRREQ,
		HopLimit:   10,
		MetricType: rfc5444.MetricHopCount,
		OrigAddr:   orig,
		TargAddr:   targ,
		OrigTLVs:   rfc5444.AddressTLVs{HasSeqNum: true, SeqNum: 7, HasMetric: true, Metric: 1},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	e.HandlePacket(buf[:n], orig, time.Now())

	select {
	case <-e.mailbox:
	default:
		t.Fatal("decoded RREQ was not forwarded")
	}
}

// TestAwaitRouteCancelled exercises AwaitRoute's context cancellation path.
func TestAwaitRouteCancelled(t *testing.T) {
	self := mustAddr("fe80::1")
	targ := mustAddr("fe80::3")
	tr := &fakeTransport{}
	cfg := testConfig()
	cfg.RREQWaitTime = 5 * time.Millisecond
	cfg.MaxRouteDiscoveryRetries = 100
	e := New(self, tr, cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	go func() {
		for {
			select {
			case <-e.mailbox:
			case <-ctx.Done():
				return
			}
		}
	}()

	_, err := e.AwaitRoute(ctx, targ)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
