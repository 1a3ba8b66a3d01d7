// Package engine implements the AODVv2 Protocol Engine: it binds the
// SeqNum counter, Client Set, RFC 5444 codec, Multicast RREQ Set, and
// Routing Information Set into the RREQ/RREP state machine and drives the
// receiver/sender tasks described by the concurrency model.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soypat/aodvv2/client"
	"github.com/soypat/aodvv2/config"
	"github.com/soypat/aodvv2/rfc5444"
	"github.com/soypat/aodvv2/routing"
	"github.com/soypat/aodvv2/rreqtable"
	"github.com/soypat/aodvv2/seqnum"
)

// Transport is the external collaborator that moves encoded packets to and
// from the wire. Implementations bind a UDP/269 socket and the IPv6 stack;
// see the transport package for the default implementation.
type Transport interface {
	RecvFrom(buf []byte) (n int, sender netip.Addr, err error)
	SendTo(buf []byte, dst netip.Addr) error
}

// Metrics records operational counters. A nil Metrics passed to New is
// replaced with a no-op implementation.
type Metrics interface {
	IncDrop(cause string)
	IncRREQOriginated()
	IncRREQForwarded()
	IncRREPOriginated()
	IncRREPForwarded()
	ObserveRoutingSetSize(n int)
}

type noopMetrics struct{}

func (noopMetrics) IncDrop(string)              {}
func (noopMetrics) IncRREQOriginated()          {}
func (noopMetrics) IncRREQForwarded()           {}
func (noopMetrics) IncRREPOriginated()          {}
func (noopMetrics) IncRREPForwarded()           {}
func (noopMetrics) ObserveRoutingSetSize(n int) {}

// NodeData is a Node Descriptor: an IPv6 address, its metric, and
// (possibly absent) sequence number. Shared with package routing, whose
// OffersImprovement and entry fillers consume it directly.
type NodeData = routing.NodeData

// PacketData is the Packet Descriptor: the engine's working value for one
// decoded or about-to-be-encoded message.
type PacketData struct {
	MsgType    rfc5444.MessageType
	HopLimit   uint8
	MetricType rfc5444.MetricType
	Orig       NodeData
	Targ       NodeData
	Sender     netip.Addr
	Timestamp  time.Time
}

var (
	ErrMalformed      = errors.New("aodvv2: malformed message")
	ErrRedundant      = errors.New("aodvv2: redundant RREQ")
	ErrMetricCeiling  = errors.New("aodvv2: metric ceiling reached")
	ErrNoImprovement  = errors.New("aodvv2: route offers no improvement")
	ErrRoutingSetFull = errors.New("aodvv2: routing set full")
	ErrClientSetFull  = errors.New("aodvv2: client set full")
	ErrNoNextHop      = errors.New("aodvv2: no next hop for forwarding")
	ErrMailboxFull    = errors.New("aodvv2: sender mailbox full")
)

type outboundKind uint8

const (
	outboundRREQ outboundKind = iota
	outboundRREP
)

type outboundMsg struct {
	kind    outboundKind
	pkt     PacketData
	nextHop netip.Addr // only meaningful for outboundRREP
}

// waiter is one AwaitRoute caller's subscription, woken on any Routing Set
// install/update touching its target address.
type waiter struct {
	target netip.Addr
	notify chan struct{}
}

// Engine is the AODVv2 protocol engine bound to one interface and
// transport. The zero Engine is not ready for use; call New.
type Engine struct {
	cfg       config.Constants
	self      netip.Addr
	seq       *seqnum.Counter
	clients   *client.Set
	rreqs     *rreqtable.Set
	routes    *routing.Set
	transport Transport
	metrics   Metrics
	log       *slog.Logger

	mailbox chan outboundMsg

	waitersMu sync.Mutex
	waiters   []waiter
}

// New constructs an Engine for selfAddr bound to transport. It initializes
// the SeqNum counter, adds selfAddr to the Client Set (cost 0, host
// prefix), and allocates the RREQ Set and Routing Set per cfg. It does not
// start the receiver/sender tasks; call Run for that.
func New(selfAddr netip.Addr, transport Transport, cfg config.Constants, metrics Metrics, log *slog.Logger) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	var seq seqnum.Counter
	seq.Init()

	e := &Engine{
		cfg:       cfg,
		self:      selfAddr,
		seq:       &seq,
		clients:   client.NewSet(cfg.MaxClients),
		rreqs:     rreqtable.NewSet(cfg.RREQBufSize, cfg.MaxIdleTime),
		routes: routing.NewSet(cfg.MaxRoutingEntries, routing.Config{
			ActiveInterval:    cfg.ActiveInterval,
			MaxIdleTime:       cfg.MaxIdleTime,
			MaxSeqNumLifetime: cfg.MaxSeqNumLifetime,
		}),
		transport: transport,
		metrics:   metrics,
		log:       log,
		mailbox:   make(chan outboundMsg, cfg.MailboxSize),
	}
	if _, err := e.clients.Add(selfAddr, uint8(selfAddr.BitLen()), 0); err != nil {
		// A freshly allocated set always has a free slot (NewSet falls
		// back to the default capacity for a non-positive MaxClients);
		// a failure here is logged and the engine stays usable.
		log.Error("add self to client set", slog.String("err", err.Error()))
	}
	return e
}

// FindRoute originates an RREQ for target, per spec §4.6.1: hop-limit is
// set to MaxHopCount, OrigNode is this router carrying the counter's
// current SeqNum (the counter then advances for the next origination),
// TargNode carries no sequence number.
func (e *Engine) FindRoute(target netip.Addr) error {
	pkt := PacketData{
		MsgType:    rfc5444.MsgTypeRREQ,
		HopLimit:   e.cfg.MaxHopCount,
		MetricType: rfc5444.MetricHopCount,
		Orig: NodeData{
			Addr:      e.self,
			Metric:    0,
			SeqNum:    e.seq.GetThenInc(),
			HasSeqNum: true,
		},
		Targ: NodeData{
			Addr:      target,
			HasSeqNum: false,
		},
		Timestamp: time.Now(),
	}
	e.metrics.IncRREQOriginated()
	return e.SendRREQ(pkt)
}

// AwaitRoute blocks until a route to target is installed in the Routing
// Set or ctx is cancelled, re-invoking FindRoute after each RREQWaitTime
// with a fresh SeqNum up to MaxRouteDiscoveryRetries times. This is not
// part of the original firmware's core (find_route sends exactly one RREQ
// and returns); it is an additive convenience built entirely atop the
// already-specified primitives.
func (e *Engine) AwaitRoute(ctx context.Context, target netip.Addr) (routing.Entry, error) {
	if rt, ok := e.routes.Get(target, rfc5444.MetricHopCount, time.Now()); ok {
		return rt, nil
	}

	notify := make(chan struct{}, 1)
	w := waiter{target: target, notify: notify}
	e.waitersMu.Lock()
	e.waiters = append(e.waiters, w)
	e.waitersMu.Unlock()
	defer e.removeWaiter(notify)

	for attempt := 0; attempt <= e.cfg.MaxRouteDiscoveryRetries; attempt++ {
		if err := e.FindRoute(target); err != nil {
			return routing.Entry{}, err
		}
		timer := time.NewTimer(e.cfg.RREQWaitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return routing.Entry{}, ctx.Err()
		case <-notify:
			timer.Stop()
			if rt, ok := e.routes.Get(target, rfc5444.MetricHopCount, time.Now()); ok {
				return rt, nil
			}
		case <-timer.C:
		}
	}
	return routing.Entry{}, errors.New("aodvv2: route discovery exhausted retries")
}

func (e *Engine) removeWaiter(notify chan struct{}) {
	e.waitersMu.Lock()
	defer e.waitersMu.Unlock()
	for i := range e.waiters {
		if e.waiters[i].notify == notify {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

func (e *Engine) wakeWaiters(addr netip.Addr) {
	e.waitersMu.Lock()
	defer e.waitersMu.Unlock()
	for _, w := range e.waiters {
		if w.target == addr {
			select {
			case w.notify <- struct{}{}:
			default:
			}
		}
	}
}

// SendRREQ hands pkt to the sender task's mailbox for encoding and
// multicast transmission. It does not block: a full mailbox drops the
// message and returns ErrMailboxFull, since neither receiver nor caller
// tasks are permitted to block on mailbox send (spec §5).
func (e *Engine) SendRREQ(pkt PacketData) error {
	select {
	case e.mailbox <- outboundMsg{kind: outboundRREQ, pkt: pkt}:
		return nil
	default:
		e.metrics.IncDrop("mailbox_full")
		return ErrMailboxFull
	}
}

// SendRREP hands pkt to the sender task's mailbox for encoding and unicast
// transmission to nextHop. See SendRREQ for the non-blocking contract.
func (e *Engine) SendRREP(pkt PacketData, nextHop netip.Addr) error {
	select {
	case e.mailbox <- outboundMsg{kind: outboundRREP, pkt: pkt, nextHop: nextHop}:
		return nil
	default:
		e.metrics.IncDrop("mailbox_full")
		return ErrMailboxFull
	}
}

// Run starts the receiver and sender tasks and blocks until ctx is
// cancelled or either task returns a fatal error. Cancellation is an
// additive convenience: the original firmware's tasks run for the process
// lifetime with no exposed cancellation (spec §5's design note on
// threading-model portability already treats the two-task split itself as
// non-load-bearing).
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.receiverTask(ctx) })
	g.Go(func() error { return e.senderTask(ctx) })
	return g.Wait()
}

func (e *Engine) receiverTask(ctx context.Context) error {
	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, sender, err := e.transport.RecvFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warn("transport recv", slog.String("err", err.Error()))
			e.metrics.IncDrop("transport_error")
			continue
		}
		e.HandlePacket(buf[:n], sender, time.Now())
	}
}

func (e *Engine) senderTask(ctx context.Context) error {
	var buf [1500]byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.mailbox:
			n, dst, err := e.encode(buf[:], msg)
			if err != nil {
				e.log.Warn("encode outbound message", slog.String("err", err.Error()))
				continue
			}
			if err := e.transport.SendTo(buf[:n], dst); err != nil {
				e.log.Warn("transport send", slog.String("err", err.Error()))
				e.metrics.IncDrop("transport_error")
				continue
			}
		}
	}
}

// encode builds the wire buffer for msg per spec §4.6.4: the write
// callback resolves the UDP destination from the message type (multicast
// for RREQ, unicast next hop otherwise).
func (e *Engine) encode(buf []byte, msg outboundMsg) (n int, dst netip.Addr, err error) {
	pkt := msg.pkt
	req := rfc5444.BuildRequest{
		MsgType:    pkt.MsgType,
		HopLimit:   pkt.HopLimit,
		MetricType: pkt.MetricType,
		OrigAddr:   pkt.Orig.Addr,
		TargAddr:   pkt.Targ.Addr,
	}
	switch pkt.MsgType {
	case rfc5444.MsgTypeRREQ:
		req.OrigTLVs = rfc5444.AddressTLVs{
			HasSeqNum: pkt.Orig.HasSeqNum,
			SeqNum:    pkt.Orig.SeqNum,
			HasMetric: true,
			Metric:    pkt.Orig.Metric,
		}
		dst = e.cfg.MulticastAddr
	case rfc5444.MsgTypeRREP:
		req.OrigTLVs = rfc5444.AddressTLVs{
			HasSeqNum: pkt.Orig.HasSeqNum,
			SeqNum:    pkt.Orig.SeqNum,
		}
		req.TargTLVs = rfc5444.AddressTLVs{
			HasSeqNum: pkt.Targ.HasSeqNum,
			SeqNum:    pkt.Targ.SeqNum,
			HasMetric: true,
			Metric:    pkt.Targ.Metric,
		}
		dst = msg.nextHop
	default:
		return 0, netip.Addr{}, ErrMalformed
	}
	n, err = (rfc5444.Writer{}).Encode(buf, req)
	return n, dst, err
}
