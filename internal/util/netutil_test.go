package util

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListener(t *testing.T) {
	l, err := CreateListener("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.NotEmpty(t, l.Addr().String())

	_, err = CreateListener("unix", "/tmp/x.sock")
	assert.Error(t, err)
}

func TestIsAddrInUse(t *testing.T) {
	l, err := CreateListener("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	_, err = CreateListener("tcp", l.Addr().String())
	require.Error(t, err)
	assert.True(t, IsAddrInUse(err), "error %v", err)
	assert.False(t, IsAddrInUse(nil))
}

func TestParseInheritedListenerFDs(t *testing.T) {
	fds, err := ParseInheritedListenerFDs("", "", 42)
	require.NoError(t, err)
	assert.Empty(t, fds)

	fds, err = ParseInheritedListenerFDs("2", "42", 42)
	require.NoError(t, err)
	assert.Equal(t, []uintptr{3, 4}, fds)

	fds, err = ParseInheritedListenerFDs("1", "", 42)
	require.NoError(t, err)
	assert.Equal(t, []uintptr{3}, fds)

	fds, err = ParseInheritedListenerFDs("2", "7", 42)
	require.NoError(t, err)
	assert.Empty(t, fds, "sockets meant for another process are ignored")

	for _, bad := range [][2]string{{"x", ""}, {"-1", ""}, {"1", "pid"}} {
		_, err = ParseInheritedListenerFDs(bad[0], bad[1], 42)
		assert.Error(t, err, "LISTEN_FDS=%q LISTEN_PID=%q", bad[0], bad[1])
	}
}

func TestListen_NewSocketWithoutActivation(t *testing.T) {
	t.Setenv(ListenFdsEnvKey, "")
	l, inherited, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.False(t, inherited)
}

func TestLimitListener_Unbounded(t *testing.T) {
	l, err := CreateListener("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.Same(t, l, LimitListener(l, 0))
}

func TestLimitListener_LimitsConcurrentConnections(t *testing.T) {
	base, err := CreateListener("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	l := LimitListener(base, 1)
	defer l.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	c1, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c1.Close()
	c2, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c2.Close()

	first := <-accepted
	select {
	case <-accepted:
		t.Fatal("second connection accepted while the first is still open")
	case <-time.After(200 * time.Millisecond):
	}

	first.Close()
	select {
	case second := <-accepted:
		second.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("second connection not accepted after the first closed")
	}
}
