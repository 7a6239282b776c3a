// notifier.go: multicast change-notification transport
//
// Grounded on the Rust original's notifier.rs/event_receiver.rs: a
// best-effort UDP multicast group used to tell other processes that a
// parameter changed, so they can react faster than PollInterval would
// otherwise allow.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// notifyPacket is the wire format of one multicast datagram: a dense
// ParamID and a truncated unix-seconds timestamp. Kept to 8 bytes since
// the datagram is a hint, not a value carrier -- the receiver always
// re-reads the actual value from its own store.
type notifyPacket struct {
	ID        ParamID
	Timestamp uint32
}

func encodeNotifyPacket(p notifyPacket) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.ID))
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	return buf
}

func decodeNotifyPacket(buf []byte) (notifyPacket, bool) {
	if len(buf) < 8 {
		return notifyPacket{}, false
	}
	return notifyPacket{
		ID:        ParamID(binary.BigEndian.Uint32(buf[0:4])),
		Timestamp: binary.BigEndian.Uint32(buf[4:8]),
	}, true
}

// notifier sends and receives change notifications over a UDP multicast
// group. A zero-value MulticastGroup disables both halves: Send becomes a
// no-op and no listener goroutine is started.
type notifier struct {
	group string
	port  int

	conn      *net.UDPConn // send socket
	listenPC  *net.UDPConn // receive socket, nil if disabled
	onNotify  func(ParamID, uint32)
	errHandler func(err error, context string)

	stopCh chan struct{}
}

func newNotifier(group string, port int, onNotify func(ParamID, uint32), errHandler func(error, string)) (*notifier, error) {
	n := &notifier{
		group:      group,
		port:       port,
		onNotify:   onNotify,
		errHandler: errHandler,
		stopCh:     make(chan struct{}),
	}
	if group == "" {
		return n, nil
	}

	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, errWrapNetwork(err, "notifier: dial multicast group")
	}
	n.conn = conn

	iface, _ := multicastCapableInterface()
	pc, err := net.ListenMulticastUDP("udp4", iface, &net.UDPAddr{IP: net.ParseIP(group), Port: port})
	if err != nil {
		conn.Close()
		return nil, errWrapNetwork(err, "notifier: listen multicast group")
	}
	n.listenPC = pc

	return n, nil
}

// multicastCapableInterface picks the first interface advertising
// multicast support, or nil (let the kernel choose) if none is found.
func multicastCapableInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagMulticast != 0 && ifaces[i].Flags&net.FlagUp != 0 {
			return &ifaces[i], nil
		}
	}
	return nil, nil
}

// Send best-effort announces a parameter change to the multicast group.
// A single bounded retry absorbs a transient "network unreachable" on an
// otherwise idle loopback interface; anything past that is logged and
// swallowed, per spec.
func (n *notifier) Send(id ParamID, unixSeconds uint32) {
	if n.conn == nil {
		return
	}
	packet := encodeNotifyPacket(notifyPacket{ID: id, Timestamp: unixSeconds})

	op := func() error {
		_, err := n.conn.Write(packet)
		return err
	}

	boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	if err := backoff.Retry(op, boff); err != nil {
		n.reportError(err, "notifier: send")
	}
}

// Listen runs the receive loop until Stop is called or ctx is cancelled.
// Malformed or short datagrams are dropped silently -- they carry no
// value payload worth logging noise over.
func (n *notifier) Listen(ctx context.Context) {
	if n.listenPC == nil {
		return
	}

	go func() {
		<-ctx.Done()
		n.listenPC.Close()
	}()

	buf := make([]byte, 64)
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		n.listenPC.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		nRead, _, err := n.listenPC.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-n.stopCh:
				return
			default:
			}
			n.reportError(err, "notifier: read")
			continue
		}

		packet, ok := decodeNotifyPacket(buf[:nRead])
		if !ok {
			continue
		}
		n.onNotify(packet.ID, packet.Timestamp)
	}
}

// Close halts Listen and releases both sockets.
func (n *notifier) Close() error {
	select {
	case <-n.stopCh:
	default:
		close(n.stopCh)
	}
	var firstErr error
	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			firstErr = err
		}
	}
	if n.listenPC != nil {
		if err := n.listenPC.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *notifier) reportError(err error, context string) {
	if n.errHandler != nil {
		n.errHandler(errWrapNetwork(err, context), context)
	}
}

func errWrapNetwork(err error, context string) error {
	return fmt.Errorf("[%s]: %s: %w", ErrCodeNetworkError, context, err)
}
