package rfc5444

import (
	"encoding/binary"
	"net/netip"
)

// BuildRequest is the writer's input: everything needed to encode one
// AODVv2 RREQ or RREP message. The message header always carries hop-limit
// only (no originator, hop-count, or message sequence number), per spec.
type BuildRequest struct {
	MsgType    MessageType
	HopLimit   uint8
	MetricType MetricType

	// OrigAddr and TargAddr are the two mandatory address-block entries,
	// OrigNode then TargNode in wire order.
	OrigAddr netip.Addr
	TargAddr netip.Addr

	OrigTLVs AddressTLVs
	TargTLVs AddressTLVs
}

// Writer encodes AODVv2 RREQ/RREP messages as RFC 5444 packets. The zero
// Writer is ready to use.
type Writer struct{}

// Encode writes req into buf as a complete RFC 5444 packet and returns the
// number of bytes written. It fails with ErrBufferTooSmall if buf cannot
// hold the encoded packet.
func (Writer) Encode(buf []byte, req BuildRequest) (int, error) {
	tlvs := [2]AddressTLVs{req.OrigTLVs, req.TargTLVs}
	for i := range tlvs {
		if tlvs[i].HasMetric {
			tlvs[i].MetricType = req.MetricType
		}
	}

	tlvBlockSize := 0
	for _, t := range tlvs {
		tlvBlockSize += tlvEncodedSize(t)
	}

	const pktHeaderSize = 1
	const msgHeaderFixedSize = 4 // msgType, flags|addrlen, msgSize(2)
	const hopLimitSize = 1
	const msgTLVBlockLenSize = 2
	const addrBlockHeaderSize = 2 // numAddr, addrBlockFlags
	midSize := 2 * addrLenIPv6
	const addrTLVBlockLenSize = 2

	msgSize := msgHeaderFixedSize + hopLimitSize + msgTLVBlockLenSize +
		addrBlockHeaderSize + midSize + addrTLVBlockLenSize + tlvBlockSize
	total := pktHeaderSize + msgSize
	if len(buf) < total {
		return 0, ErrBufferTooSmall
	}

	buf[0] = 0 // packet header: version 0, no flags, no packet TLV block, no packet seqnum.
	ptr := pktHeaderSize

	buf[ptr] = byte(req.MsgType)
	buf[ptr+1] = (msgFlagHasHopLimit << 4) | byte(addrLenIPv6-1)
	binary.BigEndian.PutUint16(buf[ptr+2:ptr+4], uint16(msgSize))
	ptr += 4

	buf[ptr] = req.HopLimit
	ptr++

	binary.BigEndian.PutUint16(buf[ptr:ptr+2], 0) // no message-level TLVs.
	ptr += 2

	buf[ptr] = 2 // numAddr
	buf[ptr+1] = 0 // addrBlockFlags: no head/tail compression.
	ptr += 2

	putAddr16(buf[ptr:ptr+addrLenIPv6], req.OrigAddr)
	ptr += addrLenIPv6
	putAddr16(buf[ptr:ptr+addrLenIPv6], req.TargAddr)
	ptr += addrLenIPv6

	binary.BigEndian.PutUint16(buf[ptr:ptr+2], uint16(tlvBlockSize))
	ptr += 2

	for i, t := range tlvs {
		n := encodeAddrTLVs(buf[ptr:], i, t)
		ptr += n
	}

	return ptr, nil
}

func tlvEncodedSize(t AddressTLVs) int {
	n := 0
	if t.HasSeqNum {
		n += 2 /*type,flags*/ + 2 /*indexRange*/ + 1 /*len*/ + 2 /*value*/
	}
	if t.HasMetric {
		n += 2 + 1 /*typeExt*/ + 2 /*indexRange*/ + 1 /*len*/ + 1 /*value*/
	}
	return n
}

// encodeAddrTLVs writes the TLVs attached to address index idx and returns
// the number of bytes written.
func encodeAddrTLVs(buf []byte, idx int, t AddressTLVs) int {
	ptr := 0
	if t.HasSeqNum {
		tlvType := TLVOrigSeqNum
		if idx == 1 {
			tlvType = TLVTargSeqNum
		}
		buf[ptr] = byte(tlvType)
		buf[ptr+1] = tlvFlagHasIndexRange
		ptr += 2
		buf[ptr] = byte(idx)
		buf[ptr+1] = byte(idx)
		ptr += 2
		buf[ptr] = 2
		ptr++
		binary.BigEndian.PutUint16(buf[ptr:ptr+2], uint16(t.SeqNum))
		ptr += 2
	}
	if t.HasMetric {
		buf[ptr] = byte(TLVMetric)
		buf[ptr+1] = tlvFlagHasTypeExt | tlvFlagHasIndexRange
		ptr += 2
		buf[ptr] = byte(t.MetricType)
		ptr++
		buf[ptr] = byte(idx)
		buf[ptr+1] = byte(idx)
		ptr += 2
		buf[ptr] = 1
		ptr++
		buf[ptr] = t.Metric
		ptr++
	}
	return ptr
}
