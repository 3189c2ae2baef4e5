//go:build unix

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/dunamismax/hostprep/internal/shell"
)

func TestHandleSignalsKillsRunningCommands(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	executor := shell.NewExecutor(log)

	codes := make(chan int, 1)
	stop := handleSignals(log, func(code int) {
		executor.Kill()
		codes <- code
	})
	defer stop()

	finished := make(chan time.Time, 1)
	go func() {
		executor.Run(context.Background(), shell.Sh("sleep 30"))
		finished <- time.Now()
	}()
	time.Sleep(200 * time.Millisecond)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatal(err)
	}
	select {
	case code := <-codes:
		if code != 129 {
			t.Errorf("exit code = %d, want 129", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("exit callback never ran")
	}
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("running command survived the interrupt")
	}
	if !strings.Contains(buf.String(), "run interrupted by SIGHUP") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestHandleSignalsStop(t *testing.T) {
	stop := handleSignals(slog.New(slog.NewTextHandler(io.Discard, nil)), func(int) {
		t.Error("exit called after stop")
	})
	stop()
}
