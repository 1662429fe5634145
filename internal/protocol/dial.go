package protocol

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// Dial connects to the server's unix socket, retrying while the socket
// file does not exist yet. Any other connect error is returned
// immediately. Mirrors the retry loop clients use at startup.
func Dial(path string, attempts int, delay time.Duration) (net.Conn, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ECONNREFUSED) {
			time.Sleep(delay)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("dial %s: %w", path, lastErr)
}
