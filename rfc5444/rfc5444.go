// Package rfc5444 implements a reader and writer for the subset of the
// RFC 5444 generic packet/message/TLV format needed to carry AODVv2's RREQ
// and RREP messages: a packet header, one message header carrying a
// hop-limit, a two-entry address block (OrigNode then TargNode), and the
// three address-block TLVs AODVv2 recognizes (OrigSeqNum, TargSeqNum,
// Metric). Any conformant RFC 5444 implementation is interoperable per the
// message/TLV identifiers below; this codec does not implement packet-level
// TLVs, multi-message packets, or address compression, none of which AODVv2
// uses.
package rfc5444

import (
	"errors"
	"net/netip"

	"github.com/soypat/aodvv2/seqnum"
)

// MessageType is the RFC 5444 message-type field value.
type MessageType uint8

const (
	// MsgTypeRREQ identifies a Route Request message.
	MsgTypeRREQ MessageType = 10
	// MsgTypeRREP identifies a Route Reply message.
	MsgTypeRREP MessageType = 11
)

func (t MessageType) String() string {
	switch t {
	case MsgTypeRREQ:
		return "RREQ"
	case MsgTypeRREP:
		return "RREP"
	default:
		return "unknown"
	}
}

// TLVType is an address-block TLV type value.
type TLVType uint8

const (
	TLVOrigSeqNum            TLVType = 1
	TLVTargSeqNum            TLVType = 2
	TLVUnreachableNodeSeqNum TLVType = 3
	TLVMetric                TLVType = 4
)

// MetricType identifies the routing cost function carried in a Metric TLV's
// type-extension field. Only HopCount is defined by this module.
type MetricType uint8

// MetricHopCount is the only metric-type implemented.
const MetricHopCount MetricType = 1

// MaxHopCount is the ceiling for the HopCount metric (link_cost=1).
const MaxHopCount = 255

const addrLenIPv6 = 16

const (
	msgFlagHasOrig = 1 << iota
	msgFlagHasHopCount
	msgFlagHasHopLimit
	msgFlagHasSeqNum
)

const (
	tlvFlagHasTypeExt = 1 << iota
	tlvFlagHasIndexRange
)

// AddressTLVs holds the TLVs recognized on one address-block entry.
type AddressTLVs struct {
	HasSeqNum  bool
	SeqNum     seqnum.Value
	HasMetric  bool
	Metric     uint8
	MetricType MetricType
}

var (
	// ErrShortBuffer is returned when buf is too small to hold a well-formed packet.
	ErrShortBuffer = errors.New("rfc5444: buffer too short")
	// ErrBadPacket is returned for any structurally malformed packet.
	ErrBadPacket = errors.New("rfc5444: malformed packet")
	// ErrUnsupportedMessageType is returned for a message type other than RREQ/RREP.
	ErrUnsupportedMessageType = errors.New("rfc5444: unsupported message type")
	// ErrAddressCount is returned when the address block does not carry exactly two addresses.
	ErrAddressCount = errors.New("rfc5444: expected exactly two addresses")
	// ErrBufferTooSmall is returned by the writer when the destination buffer cannot hold the message.
	ErrBufferTooSmall = errors.New("rfc5444: destination buffer too small")
)

func putAddr16(dst []byte, addr netip.Addr) {
	a := addr.As16()
	copy(dst, a[:])
}

func getAddr16(src []byte) netip.Addr {
	var a [16]byte
	copy(a[:], src)
	return netip.AddrFrom16(a)
}
