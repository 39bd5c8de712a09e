package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/fahmaliyi/pwmgr/config"
	"github.com/fahmaliyi/pwmgr/vault"
)

const Version = "1.0.0"

// App is the command-line front end. Every I/O dependency is a field so
// tests can drive it without a terminal.
type App struct {
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	Prompter  Prompter
	Clipboard Clipboard

	// Interactive means Stdout is a terminal: decrypted passwords are
	// shown transiently instead of printed.
	Interactive bool
}

// NewApp wires the process's standard streams and the system clipboard.
func NewApp() *App {
	return &App{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Prompter:    newTerminalPrompter(os.Stdin, os.Stderr),
		Clipboard:   systemClipboard{},
		Interactive: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (a *App) printUsage(flags *pflag.FlagSet) {
	fmt.Fprintf(a.Stderr, "Usage: pwmgr [flags] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.Stderr, "  %-38s %s\n", commands[name].usage, commands[name].summary)
	}
	fmt.Fprintf(a.Stderr, "  %-38s %s\n\nFlags:\n", "version", "Print version information")
	fmt.Fprint(a.Stderr, flags.FlagUsages())
}

// Run parses args (without the program name), unlocks the store and runs
// one command. The store is saved if the command changed it.
func (a *App) Run(args []string) error {
	var (
		configPath      string
		dbFile          string
		rawFile         string
		fingerprintFile string
		logLevel        string
	)
	flags := pflag.NewFlagSet("pwmgr", pflag.ContinueOnError)
	flags.SetOutput(a.Stderr)
	flags.SetInterspersed(false)
	flags.StringVarP(&configPath, "config", "c", os.Getenv(config.EnvVar), "YAML config file (env "+config.EnvVar+")")
	flags.StringVarP(&dbFile, "db-file-name", "d", "", "credential store file")
	flags.StringVarP(&rawFile, "raw-cred-file-name", "r", "", "build the store from a plaintext feed of '<site> <user> <username> <password>' lines")
	flags.StringVarP(&fingerprintFile, "fingerprint-file", "f", "", "master password fingerprint file")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			a.printUsage(flags)
			return nil
		}
		return err
	}
	if help, _ := flags.GetBool("help"); help {
		a.printUsage(flags)
		return nil
	}

	rest := flags.Args()
	if len(rest) == 0 {
		a.printUsage(flags)
		return errors.New("command required")
	}
	name := rest[0]
	if name == "version" {
		fmt.Fprintf(a.Stdout, "pwmgr %s\n", Version)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		a.printUsage(flags)
		return fmt.Errorf("unknown command: %q", name)
	}

	cmdFlags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cmdFlags.SetOutput(a.Stderr)
	if cmd.flags != nil {
		cmd.flags(cmdFlags)
	}
	if err := cmdFlags.Parse(rest[1:]); err != nil {
		return err
	}
	if cmdFlags.NArg() != cmd.args {
		return fmt.Errorf("usage: pwmgr %s", cmd.usage)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbFile != "" {
		cfg.StorePath = dbFile
	}
	if fingerprintFile != "" {
		cfg.FingerprintPath = fingerprintFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	logger := newLogger(a.Stderr, level, a.Interactive).With("command", name)

	s, err := a.openSession(cfg, rawFile, logger)
	if err != nil {
		return err
	}
	defer s.close()

	if err := cmd.run(a, s, cmdFlags); err != nil {
		return err
	}
	return s.saveIfDirty()
}

// session is one unlocked store. It owns the master key and zeroes it on
// close.
type session struct {
	cfg    *config.Config
	key    *vault.MasterKey
	store  vault.CredentialStore
	dirty  bool
	logger *slog.Logger
}

func (a *App) openSession(cfg *config.Config, rawFile string, logger *slog.Logger) (*session, error) {
	s := &session{cfg: cfg, logger: logger}

	outcome, err := vault.RecoverRotation(cfg.StorePath, cfg.FingerprintPath)
	if err != nil {
		return nil, err
	}
	if outcome != vault.RecoveryNone {
		logger.Warn("interrupted master password change recovered", "outcome", string(outcome))
	}

	fp, err := vault.LoadFingerprint(cfg.FingerprintPath)
	switch {
	case errors.Is(err, vault.ErrNoFingerprint):
		if err := a.guardOrphanStore(cfg, rawFile); err != nil {
			return nil, err
		}
		if err := s.setMasterPassword(a.Prompter); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		pw, err := a.Prompter.ReadSecret("Enter master password: ")
		if err != nil {
			return nil, fmt.Errorf("reading master password: %w", err)
		}
		s.key, err = vault.VerifyPassword(string(pw), fp)
		vault.Zero(pw)
		fp.Zero()
		if err != nil {
			logger.Warn("master password rejected")
			return nil, err
		}
	}

	if rawFile != "" {
		if err := s.importFeed(rawFile); err != nil {
			s.close()
			return nil, err
		}
		return s, nil
	}

	s.store, err = vault.LoadStore(cfg.StorePath)
	if err != nil {
		s.close()
		return nil, err
	}
	logger.Debug("store loaded", "path", cfg.StorePath, "credentials", s.store.Len())
	return s, nil
}

// guardOrphanStore refuses to set a new master password over a store that
// was encrypted under some other one.
func (a *App) guardOrphanStore(cfg *config.Config, rawFile string) error {
	if rawFile != "" {
		return nil
	}
	existing, err := vault.LoadStore(cfg.StorePath)
	if err != nil {
		return err
	}
	if existing.Len() > 0 {
		return fmt.Errorf("%w: %s is missing but %s holds %d credentials",
			vault.ErrNoFingerprint, cfg.FingerprintPath, cfg.StorePath, existing.Len())
	}
	return nil
}

func (s *session) setMasterPassword(p Prompter) error {
	pw, err := readNewSecret(p, "Set master password: ", "Confirm master password: ")
	if err != nil {
		return fmt.Errorf("setting master password: %w", err)
	}
	defer vault.Zero(pw)

	fp, err := vault.NewFingerprint(string(pw), s.cfg.FingerprintOptions())
	if err != nil {
		return err
	}
	defer fp.Zero()
	if err := ensureParentDir(s.cfg.FingerprintPath); err != nil {
		return err
	}
	if err := vault.SaveFingerprint(s.cfg.FingerprintPath, fp); err != nil {
		return err
	}
	s.key = vault.DeriveKey(string(pw))
	s.logger.Info("master password set", "path", s.cfg.FingerprintPath, "scheme", fp)
	return nil
}

func (s *session) importFeed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening raw credentials: %w", err)
	}
	defer f.Close()

	s.store, err = vault.Import(f, s.key)
	if err != nil {
		return err
	}
	s.dirty = true
	s.logger.Info("imported raw credentials", "path", path, "credentials", s.store.Len())
	return nil
}

func (s *session) save() error {
	if err := ensureParentDir(s.cfg.StorePath); err != nil {
		return err
	}
	if err := vault.SaveStore(s.cfg.StorePath, s.store); err != nil {
		return err
	}
	s.dirty = false
	s.logger.Debug("store saved", "path", s.cfg.StorePath, "credentials", s.store.Len())
	return nil
}

func (s *session) saveIfDirty() error {
	if !s.dirty {
		return nil
	}
	return s.save()
}

func (s *session) close() {
	if s.key != nil {
		s.key.Zero()
	}
}
