package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// peerUID extracts the connecting process's UID via SO_PEERCRED.
func peerUID(conn net.Conn) (uint32, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, fmt.Errorf("connection is not a unix socket: %T", conn)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("raw connection: %w", err)
	}
	var (
		cred    *unix.Ucred
		sockErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, fmt.Errorf("control: %w", err)
	}
	if sockErr != nil {
		return 0, fmt.Errorf("SO_PEERCRED: %w", sockErr)
	}
	return cred.Uid, nil
}

// peerAllowed accepts root, the helper's own user, and any explicitly
// configured UID.
func peerAllowed(uid uint32, allowed []int64) bool {
	if uid == 0 || uid == uint32(os.Getuid()) {
		return true
	}
	for _, candidate := range allowed {
		if candidate >= 0 && uint32(candidate) == uid {
			return true
		}
	}
	return false
}
