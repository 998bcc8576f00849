//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals forwards SIGINT and SIGTERM, which cancel the running
// command's context.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
