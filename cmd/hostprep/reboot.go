package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/dunamismax/hostprep/internal/shell"
)

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// offerReboot asks whether to reboot now and, if so, reboots.
func offerReboot(ctx context.Context, log *slog.Logger, r shell.Runner) {
	reboot := false
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Provisioning complete. Reboot now?").
			Affirmative("Reboot").
			Negative("Later").
			Value(&reboot),
	)).Run()
	if err != nil {
		log.Warn("reboot prompt failed", "error", err)
		return
	}
	if !reboot {
		log.Info("reboot skipped; some changes take effect after the next boot")
		return
	}
	log.Info("rebooting")
	c := rebootCommand()
	res, err := r.Run(ctx, c)
	if err == nil {
		err = res.Err(c)
	}
	if err != nil {
		log.Error("reboot failed", "error", err)
	}
}

func rebootCommand() shell.Command {
	return shell.Command{Name: "shutdown", Args: []string{"-r", "now"}}
}
