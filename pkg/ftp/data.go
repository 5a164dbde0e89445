package ftp

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// dataChannel is a single-use descriptor for the next data connection.
//
// A PASV or PORT command replaces the session's descriptor; replacing a
// passive one closes its listener so the port is released immediately. The
// descriptor is consumed by the first transfer command that uses it.
type dataChannel struct {
	// Exactly one of listener (passive) and target (active) is set.
	listener net.Listener
	target   string

	timeout time.Duration
}

// newPassiveChannel opens a listener for a passive-mode data connection.
//
// When a port range is configured, ports are tried round-robin starting from
// a shared cursor so concurrent sessions spread across the range instead of
// racing for the lowest port. Without a range, the kernel picks an ephemeral
// port.
func newPassiveChannel(bindAddress string, minPort, maxPort int, cursor *atomic.Int32, timeout time.Duration) (*dataChannel, error) {
	if minPort > 0 && maxPort >= minPort {
		rangeLen := int32(maxPort - minPort + 1)
		startOffset := cursor.Add(1)

		for i := int32(0); i < rangeLen; i++ {
			offset := (startOffset + i) % rangeLen
			port := int(int32(minPort) + offset)

			ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindAddress, port))
			if err == nil {
				return &dataChannel{listener: ln, timeout: timeout}, nil
			}
		}
		return nil, fmt.Errorf("no available ports in range [%d, %d]", minPort, maxPort)
	}

	ln, err := net.Listen("tcp", bindAddress+":0")
	if err != nil {
		return nil, err
	}
	return &dataChannel{listener: ln, timeout: timeout}, nil
}

// newActiveChannel records the client endpoint for an active-mode connection.
func newActiveChannel(host string, port int, timeout time.Duration) *dataChannel {
	return &dataChannel{
		target:  net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		timeout: timeout,
	}
}

// port returns the listening port for the PASV reply, 0 for active channels.
func (d *dataChannel) port() int {
	if d.listener == nil {
		return 0
	}
	return d.listener.Addr().(*net.TCPAddr).Port
}

// open establishes the data connection, consuming the descriptor.
//
// Passive channels wait for the client to connect, bounded by the data
// timeout; active channels dial out with the same bound. Either way the
// listener is released before open returns.
func (d *dataChannel) open() (net.Conn, error) {
	if d.listener != nil {
		if t, ok := d.listener.(*net.TCPListener); ok {
			_ = t.SetDeadline(time.Now().Add(d.timeout))
		}
		conn, err := d.listener.Accept()
		d.listener.Close()
		d.listener = nil
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	if d.target != "" {
		return net.DialTimeout("tcp", d.target, d.timeout)
	}

	return nil, fmt.Errorf("no data connection setup")
}

// close releases the listener without consuming the channel.
func (d *dataChannel) close() {
	if d.listener != nil {
		d.listener.Close()
		d.listener = nil
	}
}
