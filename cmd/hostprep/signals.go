package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var signalNames = map[syscall.Signal]string{
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGTERM: "SIGTERM",
}

// interruptStatus returns the signal's name and the conventional 128+n exit
// status.
func interruptStatus(sig os.Signal) (string, int) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return sig.String(), 128
	}
	name, ok := signalNames[s]
	if !ok {
		name = s.String()
	}
	return name, 128 + int(s)
}

// handleSignals logs the first SIGINT, SIGTERM or SIGHUP and calls exit with
// the matching status. Nothing is rolled back. The returned func stops the
// handler.
func handleSignals(log *slog.Logger, exit func(code int)) (stop func()) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		select {
		case sig := <-sigs:
			name, code := interruptStatus(sig)
			log.Error("run interrupted by " + name)
			exit(code)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
