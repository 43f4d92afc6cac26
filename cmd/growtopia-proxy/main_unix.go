//go:build unix

package main

import (
	"os/signal"

	"golang.org/x/sys/unix"
)

func init() {
	// A send to a peer that already reset its connection shouldn't kill
	// the whole process; the ENet loops already treat send failures as
	// non-fatal.
	signal.Ignore(unix.SIGPIPE)
}
