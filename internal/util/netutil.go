package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/net/netutil"
)

const (
	// ListenFdsEnvKey holds the number of sockets passed by a socket
	// activating supervisor such as systemd.
	ListenFdsEnvKey = "LISTEN_FDS"
	// ListenPidEnvKey names the process the sockets are meant for.
	ListenPidEnvKey = "LISTEN_PID"

	// listenFdsStart is the first inherited descriptor.
	listenFdsStart = 3
)

// CreateListener creates a TCP listener on address.
func CreateListener(network, address string) (net.Listener, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network type: %s, only 'tcp', 'tcp4', or 'tcp6' are supported for CreateListener", network)
	}
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	return l, nil
}

// Listen returns the listener the server accepts on: the first inherited
// socket when the process was socket activated, a new TCP listener on
// address otherwise. The boolean reports which one it is.
func Listen(address string) (net.Listener, bool, error) {
	return listenOrInherit(address)
}

// LimitListener bounds the number of simultaneously open accepted
// connections to n. Further accepts wait until one closes. n <= 0 leaves l
// unbounded.
func LimitListener(l net.Listener, n int) net.Listener {
	if n <= 0 {
		return l
	}
	return netutil.LimitListener(l, n)
}

func listenOrInherit(address string) (net.Listener, bool, error) {
	fds, err := ParseInheritedListenerFDs(os.Getenv(ListenFdsEnvKey), os.Getenv(ListenPidEnvKey), os.Getpid())
	if err != nil {
		return nil, false, err
	}
	if len(fds) == 0 {
		l, err := CreateListener("tcp", address)
		return l, false, err
	}
	for _, extra := range fds[1:] {
		// Only one listening socket is served.
		closeFD(extra)
	}
	l, err := NewListenerFromFD(fds[0])
	if err != nil {
		return nil, false, err
	}
	os.Unsetenv(ListenFdsEnvKey)
	os.Unsetenv(ListenPidEnvKey)
	return l, true, nil
}

// ParseInheritedListenerFDs interprets the socket activation variables.
// It returns no descriptors when count is unset or the sockets were meant
// for another process.
func ParseInheritedListenerFDs(count, pid string, self int) ([]uintptr, error) {
	if count == "" {
		return nil, nil
	}
	if pid != "" {
		p, err := strconv.Atoi(pid)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", ListenPidEnvKey, pid, err)
		}
		if p != self {
			return nil, nil
		}
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", ListenFdsEnvKey, count, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid negative %s value: %d", ListenFdsEnvKey, n)
	}
	fds := make([]uintptr, n)
	for i := range fds {
		fds[i] = uintptr(listenFdsStart + i)
	}
	return fds, nil
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Err == syscall.EADDRINUSE {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
