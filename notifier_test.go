package themis

import "testing"

func TestNotifyPacketEncodeDecodeRoundTrip(t *testing.T) {
	p := notifyPacket{ID: 42, Timestamp: 1700000000}
	buf := encodeNotifyPacket(p)
	if len(buf) != 8 {
		t.Fatalf("encoded packet length = %d, want 8", len(buf))
	}

	got, ok := decodeNotifyPacket(buf)
	if !ok {
		t.Fatal("decodeNotifyPacket reported failure on a validly encoded packet")
	}
	if got != p {
		t.Fatalf("decodeNotifyPacket() = %+v, want %+v", got, p)
	}
}

func TestDecodeNotifyPacketRejectsShortBuffer(t *testing.T) {
	if _, ok := decodeNotifyPacket([]byte{1, 2, 3}); ok {
		t.Fatal("decodeNotifyPacket accepted a too-short buffer")
	}
}

func TestNotifierDisabledWithoutMulticastGroup(t *testing.T) {
	n, err := newNotifier("", 0, func(ParamID, uint32) {}, nil)
	if err != nil {
		t.Fatalf("newNotifier with empty group should never fail: %v", err)
	}
	defer n.Close()

	if n.conn != nil || n.listenPC != nil {
		t.Fatal("notifier opened sockets despite an empty multicast group")
	}

	// Send must be a silent no-op, not a panic, when disabled.
	n.Send(1, 100)
}
