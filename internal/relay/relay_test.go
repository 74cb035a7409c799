package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSender_Forward(t *testing.T) {
	conn := listenUDP(t)
	sender := NewSender(conn.LocalAddr().String(), time.Second)

	payload := []byte("username=alice&message=hi+there")
	require.NoError(t, sender.Forward(context.Background(), payload))

	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestSender_ForwardPreservesBytes(t *testing.T) {
	conn := listenUDP(t)
	sender := NewSender(conn.LocalAddr().String(), time.Second)

	// undecoded percent escapes and raw bytes are relayed untouched
	payload := []byte("a=%26%3D&b=\xff")
	require.NoError(t, sender.Forward(context.Background(), payload))

	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestSender_BadTarget(t *testing.T) {
	sender := NewSender("not-an-address", time.Second)
	assert.Error(t, sender.Forward(context.Background(), []byte("a=b")))
	assert.Equal(t, "not-an-address", sender.Target())
}
