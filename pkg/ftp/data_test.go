package ftp

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Passive Channel Tests
// ============================================================================

func TestPassiveChannel_EphemeralPort(t *testing.T) {
	t.Parallel()

	var cursor atomic.Int32
	ch, err := newPassiveChannel("127.0.0.1", 0, 0, &cursor, time.Second)
	require.NoError(t, err)
	defer ch.close()

	assert.Greater(t, ch.port(), 0)
}

func TestPassiveChannel_RoundRobinInRange(t *testing.T) {
	t.Parallel()

	const minPort, maxPort = 42100, 42109

	var cursor atomic.Int32
	ch1, err := newPassiveChannel("127.0.0.1", minPort, maxPort, &cursor, time.Second)
	require.NoError(t, err)
	defer ch1.close()

	ch2, err := newPassiveChannel("127.0.0.1", minPort, maxPort, &cursor, time.Second)
	require.NoError(t, err)
	defer ch2.close()

	assert.GreaterOrEqual(t, ch1.port(), minPort)
	assert.LessOrEqual(t, ch1.port(), maxPort)
	assert.GreaterOrEqual(t, ch2.port(), minPort)
	assert.LessOrEqual(t, ch2.port(), maxPort)
	assert.NotEqual(t, ch1.port(), ch2.port())
}

func TestPassiveChannel_RangeExhausted(t *testing.T) {
	t.Parallel()

	const port = 42150

	var cursor atomic.Int32
	ch, err := newPassiveChannel("127.0.0.1", port, port, &cursor, time.Second)
	require.NoError(t, err)
	defer ch.close()

	// Single-port range, already held
	_, err = newPassiveChannel("127.0.0.1", port, port, &cursor, time.Second)
	assert.Error(t, err)
}

func TestPassiveChannel_OpenConsumesListener(t *testing.T) {
	t.Parallel()

	var cursor atomic.Int32
	ch, err := newPassiveChannel("127.0.0.1", 0, 0, &cursor, 2*time.Second)
	require.NoError(t, err)

	addr := ch.listener.Addr().String()
	client, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer client.Close()

	conn, err := ch.open()
	require.NoError(t, err)
	defer conn.Close()

	// The listener is released as soon as the connection is accepted
	assert.Nil(t, ch.listener)
	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestPassiveChannel_OpenTimesOut(t *testing.T) {
	t.Parallel()

	var cursor atomic.Int32
	ch, err := newPassiveChannel("127.0.0.1", 0, 0, &cursor, 100*time.Millisecond)
	require.NoError(t, err)

	_, err = ch.open()
	assert.Error(t, err)
	assert.Nil(t, ch.listener)
}

func TestPassiveChannel_CloseReleasesPort(t *testing.T) {
	t.Parallel()

	var cursor atomic.Int32
	ch, err := newPassiveChannel("127.0.0.1", 0, 0, &cursor, time.Second)
	require.NoError(t, err)

	addr := ch.listener.Addr().String()
	ch.close()
	ch.close() // idempotent

	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)
}

// ============================================================================
// Active Channel Tests
// ============================================================================

func TestActiveChannel_DialsTarget(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	ch := newActiveChannel("127.0.0.1", port, time.Second)
	assert.Equal(t, 0, ch.port())

	conn, err := ch.open()
	require.NoError(t, err)
	defer conn.Close()

	select {
	case server := <-accepted:
		server.Close()
	case <-time.After(time.Second):
		t.Fatal("no connection arrived")
	}
}

func TestActiveChannel_DialFails(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	ch := newActiveChannel("127.0.0.1", port, 500*time.Millisecond)
	_, err = ch.open()
	assert.Error(t, err)
}

func TestEmptyChannelOpenFails(t *testing.T) {
	t.Parallel()

	ch := &dataChannel{timeout: time.Second}
	_, err := ch.open()
	assert.Error(t, err)
}
