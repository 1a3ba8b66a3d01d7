package engine

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/aodvv2/internal"
	"github.com/soypat/aodvv2/rfc5444"
	"github.com/soypat/aodvv2/routing"
	"github.com/soypat/aodvv2/rreqtable"
)

// linkCost returns the per-hop cost for metricType. Only HopCount is
// defined, so every metric type is charged the HopCount cost; the reader
// does not check the Metric TLV's type extension.
func linkCost(rfc5444.MetricType) uint8 { return 1 }

// maxMetric returns the metric ceiling for metricType.
func maxMetric(rfc5444.MetricType) uint8 { return rfc5444.MaxHopCount }

// HandlePacket is the reader_handle_packet hook: it decodes buf and runs
// the RREQ/RREP state machine (spec §4.6.2, §4.6.3). It never returns an
// error to the caller; all failures collapse to a logged, counted DROP per
// spec §7.
func (e *Engine) HandlePacket(buf []byte, sender netip.Addr, now time.Time) {
	pkt := PacketData{Sender: sender, Timestamp: now}
	var gotOrig, gotTarg bool

	(rfc5444.Reader{}).Decode(buf,
		func(index int, addr netip.Addr, tlvs rfc5444.AddressTLVs) error {
			switch index {
			case 0:
				gotOrig = true
				pkt.Orig.Addr = addr
				if tlvs.HasSeqNum {
					pkt.Orig.HasSeqNum = true
					pkt.Orig.SeqNum = tlvs.SeqNum
				}
				if tlvs.HasMetric {
					pkt.Orig.Metric = tlvs.Metric
					pkt.MetricType = tlvs.MetricType
				}
			case 1:
				gotTarg = true
				pkt.Targ.Addr = addr
				if tlvs.HasSeqNum {
					pkt.Targ.HasSeqNum = true
					pkt.Targ.SeqNum = tlvs.SeqNum
				}
				if tlvs.HasMetric {
					pkt.Targ.Metric = tlvs.Metric
					pkt.MetricType = tlvs.MetricType
				}
			}
			return nil
		},
		func(msgType rfc5444.MessageType, hopLimit uint8, dropped bool, cause error) {
			if dropped {
				e.drop("malformed", sender, cause)
				return
			}
			pkt.MsgType = msgType
			pkt.HopLimit = hopLimit
			if !gotOrig || !gotTarg {
				e.drop("malformed", sender, ErrMalformed)
				return
			}
			switch msgType {
			case rfc5444.MsgTypeRREQ:
				e.handleRREQ(pkt)
			case rfc5444.MsgTypeRREP:
				e.handleRREP(pkt)
			}
		},
	)
}

func (e *Engine) drop(cause string, sender netip.Addr, err error) {
	e.metrics.IncDrop(cause)
	e.log.Debug("drop", slog.String("cause", cause), internal.SlogNetipAddr("sender", sender), slog.String("err", err.Error()))
}

// handleRREQ implements spec §4.6.2 steps 2-10 (step 1 already handled by
// the caller via the reader's dropped flag).
func (e *Engine) handleRREQ(pkt PacketData) {
	if !pkt.Orig.Addr.IsValid() || !pkt.Orig.HasSeqNum || !pkt.Targ.Addr.IsValid() {
		e.drop("malformed", pkt.Sender, ErrMalformed)
		return
	}
	if pkt.HopLimit == 0 {
		e.drop("malformed", pkt.Sender, ErrMalformed)
		return
	}
	cost := linkCost(pkt.MetricType)
	if maxMetric(pkt.MetricType)-cost <= pkt.Orig.Metric {
		e.drop("metric_ceiling", pkt.Sender, ErrMetricCeiling)
		return
	}
	red := e.rreqs.IsRedundant(rreqtable.Packet{
		Orig:       pkt.Orig.Addr,
		Targ:       pkt.Targ.Addr,
		MetricType: pkt.MetricType,
		OrigSeqNum: pkt.Orig.SeqNum,
		OrigMetric: pkt.Orig.Metric,
	}, pkt.Timestamp)
	if red {
		e.drop("redundant", pkt.Sender, ErrRedundant)
		return
	}

	pkt.Orig.Metric += cost

	rt, ok := e.routes.Get(pkt.Orig.Addr, pkt.MetricType, pkt.Timestamp)
	var entry routing.Entry
	if ok {
		if !routing.OffersImprovement(rt, pkt.Orig) {
			e.drop("no_improvement", pkt.Sender, ErrNoImprovement)
			return
		}
		entry = rt
	}
	e.routes.Fill(&entry, pkt.Orig, pkt.Sender, pkt.MetricType, pkt.Orig.Metric, pkt.Timestamp)
	if ok {
		e.routes.Update(entry)
	} else {
		e.routes.Add(entry)
	}
	e.wakeWaiters(pkt.Orig.Addr)
	e.metrics.ObserveRoutingSetSize(e.routes.Len(pkt.Timestamp))

	if _, isClient := e.clients.Find(pkt.Targ.Addr); isClient {
		rrep := pkt
		rrep.MsgType = rfc5444.MsgTypeRREP
		rrep.Targ.Metric = 0
		rrep.Targ.SeqNum = e.seq.GetThenInc()
		rrep.Targ.HasSeqNum = true
		e.metrics.IncRREPOriginated()
		if err := e.SendRREP(rrep, pkt.Sender); err != nil {
			e.log.Warn("enqueue RREP", slog.String("err", err.Error()))
		}
		return
	}

	e.metrics.IncRREQForwarded()
	if err := e.SendRREQ(pkt); err != nil {
		e.log.Warn("enqueue forwarded RREQ", slog.String("err", err.Error()))
	}
}

// handleRREP implements spec §4.6.3.
func (e *Engine) handleRREP(pkt PacketData) {
	if !pkt.Orig.Addr.IsValid() || !pkt.Orig.HasSeqNum || !pkt.Targ.Addr.IsValid() || !pkt.Targ.HasSeqNum {
		e.drop("malformed", pkt.Sender, ErrMalformed)
		return
	}
	if pkt.HopLimit == 0 {
		e.drop("malformed", pkt.Sender, ErrMalformed)
		return
	}
	cost := linkCost(pkt.MetricType)
	if maxMetric(pkt.MetricType)-cost <= pkt.Targ.Metric {
		e.drop("metric_ceiling", pkt.Sender, ErrMetricCeiling)
		return
	}

	pkt.Targ.Metric += cost

	rt, ok := e.routes.Get(pkt.Targ.Addr, pkt.MetricType, pkt.Timestamp)
	var entry routing.Entry
	if ok {
		if !routing.OffersImprovement(rt, pkt.Targ) {
			e.drop("no_improvement", pkt.Sender, ErrNoImprovement)
			return
		}
		entry = rt
	}
	e.routes.Fill(&entry, pkt.Targ, pkt.Sender, pkt.MetricType, pkt.Targ.Metric, pkt.Timestamp)
	if ok {
		e.routes.Update(entry)
	} else {
		e.routes.Add(entry)
	}
	e.wakeWaiters(pkt.Targ.Addr)
	e.metrics.ObserveRoutingSetSize(e.routes.Len(pkt.Timestamp))

	if _, isClient := e.clients.Find(pkt.Orig.Addr); isClient {
		// This RREP satisfies a route discovery this router originated;
		// the transport shim is expected to flush any buffered packets
		// for OrigNode. Nothing further to do here.
		e.log.Debug("route discovered", internal.SlogNetipAddr("target", pkt.Targ.Addr))
		return
	}

	nextHop, ok := e.routes.NextHop(pkt.Orig.Addr, pkt.MetricType, pkt.Timestamp)
	if !ok {
		e.drop("no_next_hop", pkt.Sender, ErrNoNextHop)
		return
	}
	e.metrics.IncRREPForwarded()
	if err := e.SendRREP(pkt, nextHop); err != nil {
		e.log.Warn("enqueue forwarded RREP", slog.String("err", err.Error()))
	}
}
