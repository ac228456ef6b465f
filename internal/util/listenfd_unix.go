//go:build unix

package util

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// NewListenerFromFD creates a net.Listener from an inherited descriptor.
// The descriptor is marked close-on-exec first so it does not leak into
// processes the server may start.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	unix.CloseOnExec(int(fd))

	file := os.NewFile(fd, fmt.Sprintf("listener-from-fd-%d", fd))
	if file == nil {
		return nil, fmt.Errorf("os.NewFile returned nil for FD %d", fd)
	}
	// net.FileListener duplicates the descriptor; the original is ours to close.
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener failed for FD %d: %w", fd, err)
	}
	return listener, nil
}

func closeFD(fd uintptr) {
	unix.Close(int(fd))
}
