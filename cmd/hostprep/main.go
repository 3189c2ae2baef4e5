package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dunamismax/hostprep/internal/ageutil"
	"github.com/dunamismax/hostprep/internal/audit"
	"github.com/dunamismax/hostprep/internal/backup"
	"github.com/dunamismax/hostprep/internal/color"
	"github.com/dunamismax/hostprep/internal/config"
	"github.com/dunamismax/hostprep/internal/fetch"
	"github.com/dunamismax/hostprep/internal/logging"
	"github.com/dunamismax/hostprep/internal/plan"
	"github.com/dunamismax/hostprep/internal/platform"
	"github.com/dunamismax/hostprep/internal/runner"
	"github.com/dunamismax/hostprep/internal/shell"
	"github.com/dunamismax/hostprep/internal/tags"
	"github.com/dunamismax/hostprep/internal/task"
)

var version = "dev"

// osReleasePath is read to detect the distribution.
var osReleasePath = "/etc/os-release"

type options struct {
	configPath        string
	envFile           string
	dryRun            bool
	verbose           bool
	logFile           string
	logLevel          string
	noColor           bool
	yes               bool
	allowUnprivileged bool
}

// exitCode is returned from the root command to end the process with a
// specific status once the failure has already been reported.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func main() {
	root := buildRoot()
	err := root.Execute()
	if err == nil {
		return
	}
	var code exitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.BoldRed("error:"), err)
	os.Exit(runner.ExitAborted)
}

func buildRoot() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:   "hostprep",
		Short: "Provision a fresh BSD or Linux host from a YAML profile",
		Long: `hostprep reads a declarative profile (packages, config files, users,
services, repositories, kernel settings and commands) and applies it as an
ordered list of idempotent tasks. Tasks whose desired state is already in
place are skipped, so hostprep can be re-run safely.`,
		Example: `  hostprep
  hostprep -c /etc/hostprep/web.yaml --dry-run
  hostprep --env-file /root/hostprep.env -v`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}

	f := root.Flags()
	f.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to the profile")
	f.StringVar(&opts.envFile, "env-file", "", "load environment overrides from a .env file")
	f.BoolVar(&opts.dryRun, "dry-run", false, "check every task but change nothing")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "show debug output on the terminal")
	f.StringVar(&opts.logFile, "log-file", "", "log file (default from profile, "+config.DefaultLogFile+")")
	f.StringVar(&opts.logLevel, "log-level", "", "terminal log level: debug, info, warn or error")
	f.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	f.BoolVar(&opts.yes, "yes", false, "do not offer to reboot after the run")
	f.BoolVar(&opts.allowUnprivileged, "allow-unprivileged", false, "run without root privileges")
	return root
}

// loadProfile resolves the profile and applies env and flag overrides.
func loadProfile(cmd *cobra.Command, opts options) (*config.Profile, error) {
	if opts.envFile != "" {
		if err := config.LoadEnvFile(opts.envFile); err != nil {
			return nil, err
		}
	}
	p, err := config.Resolve(opts.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	p.ApplyEnv(os.Getenv)
	if opts.logFile != "" {
		p.LogFile = opts.logFile
	}
	if opts.logLevel != "" {
		p.LogLevel = opts.logLevel
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Source, err)
	}
	return p, nil
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stderr := cmd.ErrOrStderr()

	if !opts.allowUnprivileged && !platform.IsRoot() {
		return errors.New("hostprep must run as root (use --allow-unprivileged to override)")
	}

	p, err := loadProfile(cmd, opts)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(p.LogLevel)
	if err != nil {
		return err
	}
	if opts.verbose {
		level = slog.LevelDebug
	}

	color.Init(os.Stderr, opts.noColor)
	logger := logging.New(logging.Options{Path: p.LogFile, Level: level, Terminal: stderr, Color: color.Enabled})
	defer logger.Close()
	log := logger.Logger

	executor := shell.NewExecutor(log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := handleSignals(log, func(code int) {
		cancel()
		executor.Kill()
		logger.Close()
		os.Exit(code)
	})
	defer stop()

	goos := platform.Current()
	osr, err := platform.ReadOSRelease(osReleasePath)
	if err != nil {
		log.Warn("could not read os-release", "path", osReleasePath, "error", err)
	}
	hostTags := tags.Merge(tags.AutoDetect(osr), p.Tags)
	manager := p.PackageManager
	if manager == "" {
		manager = platform.DetectPackageManager(goos, nil)
	}
	services := platform.DetectServiceManager(goos, nil)

	log.Info("hostprep "+version+" starting",
		"profile", p.Source,
		"os", goos,
		"distro", osr.ID,
		"package_manager", manager,
		"service_manager", services,
		"dry_run", opts.dryRun,
	)
	log.Debug("host tags", "tags", hostTags)

	fetcher := fetch.New(p.CacheDir, log)
	changes := task.NewChangeSet()
	tasks, err := plan.Build(p, plan.Env{
		Runner:         executor,
		Logger:         log,
		OS:             goos,
		PackageManager: manager,
		ServiceManager: services,
		Tags:           hostTags,
		Vars:           plan.Vars(p, goos, osr, hostTags),
		Backups:        backup.Store{Dir: p.BackupDir},
		Fetcher:        fetcher,
		Key:            &ageutil.Key{IdentityFile: platform.ExpandPath(p.Age.Identity), Passphrase: p.Age.Passphrase},
		Changes:        changes,
	})
	if err != nil {
		log.Error("planning failed", "error", err)
		return exitCode(runner.ExitAborted)
	}
	if !opts.dryRun {
		if err := preflight(ctx, log, p.Preflight, fetcher, tasks, time.Now()); err != nil {
			return err
		}
	}

	ropts := runner.Options{DryRun: opts.dryRun, Changes: changes}
	if !opts.dryRun && p.HistoryFile != "" {
		ropts.Recorder = audit.Open(p.HistoryFile, time.Now())
	}
	report := runner.New(log, ropts).ExecuteAll(ctx, tasks)
	log.Info("run finished", "status", report.Status.String(), "duration", report.Duration().Round(time.Millisecond).String())

	report.Render(stderr)

	code := report.ExitCode()
	if code == runner.ExitOK && p.RebootPrompt && !opts.yes && !opts.dryRun && interactive() {
		offerReboot(ctx, log, executor)
	}
	if code != runner.ExitOK {
		return exitCode(code)
	}
	return nil
}
