//go:build linux || darwin

// Package server acquires the listener the HTTP API is served on.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// listenFdsStart is SD_LISTEN_FDS_START.
const listenFdsStart = 3

var ErrNoActivatedSocket = errors.New("socket activation requested but no socket was passed")

// GetListener returns the socket handed over by systemd when socketActivation
// is set, otherwise a fresh TCP listener on addr.
func GetListener(addr string, socketActivation bool) (net.Listener, error) {
	if !socketActivation {
		return net.Listen("tcp", addr)
	}
	if os.Getenv("LISTEN_FDS") != "1" {
		return nil, ErrNoActivatedSocket
	}
	if pid, err := strconv.Atoi(os.Getenv("LISTEN_PID")); err != nil || pid != os.Getpid() {
		return nil, fmt.Errorf("%w: LISTEN_PID does not match", ErrNoActivatedSocket)
	}
	f := os.NewFile(uintptr(listenFdsStart), "listener")
	if f == nil {
		return nil, ErrNoActivatedSocket
	}
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("activated socket: %w", err)
	}
	return ln, nil
}
