package transport

import (
	"net"
	"net/netip"
	"testing"
	"time"
)

// TestUnicastRoundTrip exercises RecvFrom/SendTo over loopback, the part of
// UDP that does not require a real multicast-capable interface to test.
func TestUnicastRoundTrip(t *testing.T) {
	// Listen maps port 0 to the AODVv2 port, so each end gets its own
	// explicit unprivileged port to avoid both binding 269.
	a, err := Listen(46269, netip.MustParseAddr("ff02::6d"))
	if err != nil {
		t.Skipf("udp6 unavailable in this environment: %v", err)
	}
	defer a.Close()
	b, err := Listen(46270, netip.MustParseAddr("ff02::6d"))
	if err != nil {
		t.Skipf("udp6 unavailable in this environment: %v", err)
	}
	defer b.Close()

	dst := netip.MustParseAddr("::1")
	bAddr, ok := b.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("unexpected local addr type %T", b.conn.LocalAddr())
	}

	msg := []byte("hello aodvv2")
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		n, sender, err := b.RecvFrom(buf)
		if err != nil {
			t.Errorf("RecvFrom: %v", err)
			return
		}
		if string(buf[:n]) != string(msg) {
			t.Errorf("payload = %q, want %q", buf[:n], msg)
		}
		if !sender.IsValid() {
			t.Error("sender address invalid")
		}
	}()

	a.group.Port = bAddr.Port
	if err := a.SendTo(msg, dst); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RecvFrom")
	}
}
