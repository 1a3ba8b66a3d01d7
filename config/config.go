// Package config holds the AODVv2 engine's tunable constants: the RFC
// defaults, overridable at startup rather than compiled in.
package config

import (
	"net/netip"
	"time"
)

// Constants bundles the overridable values from the AODVv2 constants
// table. The zero value is not meaningful; use Default.
type Constants struct {
	// MaxHopCount is the hop-limit the engine puts on RREQs it originates.
	// The metric ceiling applied to inbound messages is
	// rfc5444.MaxHopCount, not this field.
	MaxHopCount uint8
	// ActiveInterval is how long an Active route may go unused before
	// becoming Idle.
	ActiveInterval time.Duration
	// MaxIdleTime bounds both how long an Idle route may persist before
	// becoming Expired and the RREQ Set's redundancy window.
	MaxIdleTime time.Duration
	// MaxSeqNumLifetime is how long an Expired route's stale sequence
	// number remains worth keeping before the entry is purged.
	MaxSeqNumLifetime time.Duration
	// RREQWaitTime is how long an originator waits for a reply before
	// retrying discovery.
	RREQWaitTime time.Duration
	// MaxRouteDiscoveryRetries bounds AwaitRoute's retry count.
	MaxRouteDiscoveryRetries int
	// MaxRoutingEntries is the Routing Information Set's capacity.
	MaxRoutingEntries int
	// MaxClients is the Router Client Set's capacity.
	MaxClients int
	// RREQBufSize is the Multicast RREQ Set's capacity.
	RREQBufSize int
	// MailboxSize is the sender task's mailbox channel capacity.
	MailboxSize int
	// UDPPort is the AODVv2 well-known port.
	UDPPort uint16
	// MulticastAddr is the link-local All-MANET-Routers group.
	MulticastAddr netip.Addr
}

// Default returns the RFC-default constants (spec §3's table).
func Default() Constants {
	return Constants{
		MaxHopCount:              255,
		ActiveInterval:           5 * time.Second,
		MaxIdleTime:              250 * time.Second,
		MaxSeqNumLifetime:        300 * time.Second,
		RREQWaitTime:             2 * time.Second,
		MaxRouteDiscoveryRetries: 3,
		MaxRoutingEntries:        8,
		MaxClients:               2,
		RREQBufSize:              16,
		MailboxSize:              32,
		UDPPort:                  269,
		MulticastAddr:            netip.MustParseAddr("ff02::6d"),
	}
}
