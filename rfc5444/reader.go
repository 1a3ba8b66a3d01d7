package rfc5444

import (
	"encoding/binary"
	"net/netip"

	"github.com/soypat/aodvv2/seqnum"
)

// AddressFunc is invoked once per address-block entry, in wire order
// (OrigNode at index 0, TargNode at index 1), carrying the address and any
// recognized TLVs attached to it.
type AddressFunc func(index int, addr netip.Addr, tlvs AddressTLVs) error

// EndFunc is invoked exactly once per decoded packet, after all AddressFunc
// calls, reporting the message type, the hop-limit after the reader has
// decremented it by one (a hop-limit of 0 on the wire is reported as 0),
// and whether the packet was dropped. cause is non-nil iff dropped.
type EndFunc func(msgType MessageType, hopLimit uint8, dropped bool, cause error)

// Reader decodes RFC 5444 packets carrying a single AODVv2 message. The
// zero Reader is ready to use.
type Reader struct{}

// Decode parses buf as one RFC 5444 packet and invokes onAddr once per
// address then onEnd exactly once. Decode itself never returns an error for
// malformed input: malformed packets are reported via onEnd(dropped=true)
// so callers can release per-packet working state uniformly, matching the
// "dropped flag carried to end-of-message" contract. Decode only returns an
// error if onAddr returns one, which aborts decoding early.
func (Reader) Decode(buf []byte, onAddr AddressFunc, onEnd EndFunc) error {
	msgType, hopLimit, addrs, tlvs, err := parsePacket(buf)
	if err != nil {
		onEnd(0, 0, true, err)
		return nil
	}
	for i, addr := range addrs {
		if err := onAddr(i, addr, tlvs[i]); err != nil {
			return err
		}
	}
	onEnd(msgType, hopLimit, false, nil)
	return nil
}

func parsePacket(buf []byte) (msgType MessageType, hopLimit uint8, addrs [2]netip.Addr, tlvs [2]AddressTLVs, err error) {
	const pktHeaderSize = 1
	if len(buf) < pktHeaderSize+4 {
		err = ErrShortBuffer
		return
	}
	ptr := pktHeaderSize // skip packet header (version+flags byte; no packet TLV block, no packet seqnum supported)

	if len(buf[ptr:]) < 4 {
		err = ErrBadPacket
		return
	}
	msgType = MessageType(buf[ptr])
	if msgType != MsgTypeRREQ && msgType != MsgTypeRREP {
		err = ErrUnsupportedMessageType
		return
	}
	flagsAddrLen := buf[ptr+1]
	flags := flagsAddrLen >> 4
	addrLen := int(flagsAddrLen&0x0f) + 1
	if addrLen != addrLenIPv6 {
		err = ErrBadPacket
		return
	}
	msgSize := binary.BigEndian.Uint16(buf[ptr+2 : ptr+4])
	if int(msgSize) > len(buf[ptr:]) {
		err = ErrShortBuffer
		return
	}
	msgEnd := ptr + int(msgSize)
	ptr += 4

	if flags&msgFlagHasOrig != 0 {
		if ptr+addrLen > len(buf) {
			err = ErrBadPacket
			return
		}
		ptr += addrLen // originator address not used by AODVv2; skip over.
	}
	if flags&msgFlagHasHopCount != 0 {
		if ptr+1 > len(buf) {
			err = ErrBadPacket
			return
		}
		ptr++ // hop-count not used by AODVv2; skip.
	}
	if flags&msgFlagHasHopLimit != 0 {
		if ptr+1 > len(buf) {
			err = ErrBadPacket
			return
		}
		hopLimit = buf[ptr]
		if hopLimit > 0 {
			hopLimit-- // the reader decrements hop-limit on receipt; see spec §4.6.2 step 3.
		}
		ptr++
	}
	if flags&msgFlagHasSeqNum != 0 {
		if ptr+2 > len(buf) {
			err = ErrBadPacket
			return
		}
		ptr += 2 // message-level seqnum not used by AODVv2; skip.
	}

	if ptr+2 > len(buf) {
		err = ErrBadPacket
		return
	}
	msgTLVBlockLen := binary.BigEndian.Uint16(buf[ptr : ptr+2])
	ptr += 2
	if ptr+int(msgTLVBlockLen) > len(buf) {
		err = ErrBadPacket
		return
	}
	ptr += int(msgTLVBlockLen) // message-level TLVs not used by AODVv2; skip.

	if ptr+2 > len(buf) {
		err = ErrBadPacket
		return
	}
	numAddr := int(buf[ptr])
	// addrBlockFlags (buf[ptr+1]) is reserved for head/tail compression,
	// which this codec does not implement; always expected to be 0.
	if numAddr != 2 {
		err = ErrAddressCount
		return
	}
	ptr += 2

	midLen := numAddr * addrLen
	if ptr+midLen > len(buf) {
		err = ErrBadPacket
		return
	}
	for i := 0; i < numAddr; i++ {
		addrs[i] = getAddr16(buf[ptr+i*addrLen : ptr+(i+1)*addrLen])
	}
	ptr += midLen

	if ptr+2 > len(buf) {
		err = ErrBadPacket
		return
	}
	tlvBlockLen := int(binary.BigEndian.Uint16(buf[ptr : ptr+2]))
	ptr += 2
	if ptr+tlvBlockLen > len(buf) || ptr+tlvBlockLen > msgEnd {
		err = ErrBadPacket
		return
	}
	tlvEnd := ptr + tlvBlockLen
	for ptr < tlvEnd {
		if ptr+2 > tlvEnd {
			err = ErrBadPacket
			return
		}
		tlvType := TLVType(buf[ptr])
		tlvFlags := buf[ptr+1]
		ptr += 2

		var typeExt MetricType
		if tlvFlags&tlvFlagHasTypeExt != 0 {
			if ptr+1 > tlvEnd {
				err = ErrBadPacket
				return
			}
			typeExt = MetricType(buf[ptr])
			ptr++
		}

		idxStart, idxStop := 0, numAddr-1
		if tlvFlags&tlvFlagHasIndexRange != 0 {
			if ptr+2 > tlvEnd {
				err = ErrBadPacket
				return
			}
			idxStart = int(buf[ptr])
			idxStop = int(buf[ptr+1])
			ptr += 2
		}

		if ptr+1 > tlvEnd {
			err = ErrBadPacket
			return
		}
		valLen := int(buf[ptr])
		ptr++
		if ptr+valLen > tlvEnd {
			err = ErrBadPacket
			return
		}
		val := buf[ptr : ptr+valLen]
		ptr += valLen

		if idxStart < 0 || idxStop >= numAddr || idxStart > idxStop {
			err = ErrBadPacket
			return
		}
		for i := idxStart; i <= idxStop; i++ {
			switch tlvType {
			case TLVOrigSeqNum, TLVTargSeqNum, TLVUnreachableNodeSeqNum:
				if valLen != 2 {
					err = ErrBadPacket
					return
				}
				tlvs[i].HasSeqNum = true
				tlvs[i].SeqNum = seqnum.Value(binary.BigEndian.Uint16(val))
			case TLVMetric:
				if valLen != 1 {
					err = ErrBadPacket
					return
				}
				tlvs[i].HasMetric = true
				tlvs[i].Metric = val[0]
				tlvs[i].MetricType = typeExt
			}
		}
	}

	return msgType, hopLimit, addrs, tlvs, nil
}
