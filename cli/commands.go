package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/fahmaliyi/pwmgr/vault"
)

type command struct {
	usage   string
	summary string
	args    int
	flags   func(*pflag.FlagSet)
	run     func(a *App, s *session, flags *pflag.FlagSet) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"add": {
			usage:   "add <site> <user> <username>",
			summary: "Store a new credential",
			args:    3,
			run:     runAdd,
		},
		"get": {
			usage:   "get <site> <user> [--copy] [--show-for D]",
			summary: "Show a credential's username and password",
			args:    2,
			flags: func(fs *pflag.FlagSet) {
				fs.Bool("copy", false, "copy the password to the clipboard instead of showing it")
				fs.Duration("show-for", 0, "how long to show the password (default from config)")
			},
			run: runGet,
		},
		"update": {
			usage:   "update <site> <user> <username>",
			summary: "Replace a credential's username and password",
			args:    3,
			run:     runUpdate,
		},
		"delete": {
			usage:   "delete <site> <user>",
			summary: "Remove a credential",
			args:    2,
			run:     runDelete,
		},
		"list": {
			usage:   "list",
			summary: "List sites, users and usernames",
			run:     runList,
		},
		"passwd": {
			usage:   "passwd",
			summary: "Change the master password and re-encrypt every credential",
			run:     runPasswd,
		},
		"browse": {
			usage:   "browse",
			summary: "Browse credentials interactively",
			run:     runBrowse,
		},
	}
}

func runAdd(a *App, s *session, flags *pflag.FlagSet) error {
	site, user, username := flags.Arg(0), flags.Arg(1), flags.Arg(2)
	if s.store.Contains(site, user) {
		return fmt.Errorf("%w: site %q user %q (use update instead)", vault.ErrAlreadyExists, site, user)
	}

	pw, err := readNewSecret(a.Prompter, "Enter password: ", "Confirm password: ")
	if err != nil {
		return err
	}
	defer vault.Zero(pw)

	if err := s.store.Add(s.key, site, user, username, string(pw)); err != nil {
		return err
	}
	s.dirty = true
	s.logger.Info("credential added", "site", site, "user", user)
	fmt.Fprintf(a.Stdout, "Added credentials for site %q user %q\n", site, user)
	return nil
}

func runGet(a *App, s *session, flags *pflag.FlagSet) error {
	site, user := flags.Arg(0), flags.Arg(1)
	view, err := s.store.Get(s.key, site, user)
	if err != nil {
		return err
	}
	s.logger.Debug("credential read", "site", site, "user", user)

	fmt.Fprintf(a.Stdout, "Site: %s\nUser: %s\nUsername: %s\n", site, user, view.Username)

	if copyOnly, _ := flags.GetBool("copy"); copyOnly {
		return a.copyPassword(view.Password, s.cfg.ClipboardTimeout)
	}

	d, _ := flags.GetDuration("show-for")
	if d <= 0 {
		d = s.cfg.RevealDuration
	}
	if !a.Interactive {
		fmt.Fprintf(a.Stdout, "Password: %s\n", view.Password)
		return nil
	}
	return showTransient(a.Stdin, a.Stdout, "Password: "+view.Password, d)
}

// copyPassword puts the password on the clipboard and clears it after
// timeout, or earlier on a key press when interactive.
func (a *App) copyPassword(password string, timeout time.Duration) error {
	if err := a.Clipboard.WriteAll(password); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	if a.Interactive {
		if err := showTransient(a.Stdin, a.Stdout, "Password copied to clipboard", timeout); err != nil {
			_ = clearClipboard(a.Clipboard, password)
			return err
		}
	} else {
		fmt.Fprintf(a.Stdout, "Password copied to clipboard. Clearing in %s...\n", timeout)
		time.Sleep(timeout)
	}
	return clearClipboard(a.Clipboard, password)
}

func runUpdate(a *App, s *session, flags *pflag.FlagSet) error {
	site, user, username := flags.Arg(0), flags.Arg(1), flags.Arg(2)
	if !s.store.Contains(site, user) {
		return fmt.Errorf("%w: site %q user %q", vault.ErrNotFound, site, user)
	}

	pw, err := readNewSecret(a.Prompter, "Enter new password: ", "Confirm new password: ")
	if err != nil {
		return err
	}
	defer vault.Zero(pw)

	if err := s.store.Update(s.key, site, user, username, string(pw)); err != nil {
		return err
	}
	s.dirty = true
	s.logger.Info("credential updated", "site", site, "user", user)
	fmt.Fprintf(a.Stdout, "Updated credentials for site %q user %q\n", site, user)
	return nil
}

func runDelete(a *App, s *session, flags *pflag.FlagSet) error {
	site, user := flags.Arg(0), flags.Arg(1)
	if err := s.store.Delete(site, user); err != nil {
		return err
	}
	s.dirty = true
	s.logger.Info("credential deleted", "site", site, "user", user)
	fmt.Fprintf(a.Stdout, "Removed credentials for site %q user %q\n", site, user)
	return nil
}

func runList(a *App, s *session, _ *pflag.FlagSet) error {
	current := ""
	for entry := range s.store.List() {
		if entry.Site != current {
			fmt.Fprintf(a.Stdout, "Site: %s\n", entry.Site)
			current = entry.Site
		}
		fmt.Fprintf(a.Stdout, "    User: %s  Username: %s\n", entry.User, entry.Credential.Username)
	}
	if current == "" {
		fmt.Fprintln(a.Stdout, "No credentials stored.")
	}
	return nil
}

func runPasswd(a *App, s *session, _ *pflag.FlagSet) error {
	pw, err := readNewSecret(a.Prompter, "New master password: ", "Confirm new master password: ")
	if err != nil {
		return err
	}
	defer vault.Zero(pw)

	logger := s.logger.With("rotation", uuid.NewString())
	logger.Info("rotating master password", "credentials", s.store.Len())

	rotated, fp, err := vault.Rotate(s.store, s.key, string(pw), s.cfg.FingerprintOptions())
	if err != nil {
		logger.Error("rotation aborted", "error", err)
		return err
	}
	defer fp.Zero()

	if err := ensureParentDir(s.cfg.StorePath); err != nil {
		return err
	}
	if err := vault.CommitRotation(s.cfg.StorePath, s.cfg.FingerprintPath, rotated, fp); err != nil {
		logger.Error("rotation not committed", "error", err)
		return err
	}

	s.key.Zero()
	s.key = vault.DeriveKey(string(pw))
	s.store = rotated
	s.dirty = false
	logger.Info("master password rotated", "scheme", fp)
	fmt.Fprintf(a.Stdout, "Master password changed; %d credentials re-encrypted.\n", rotated.Len())
	return nil
}

func runBrowse(a *App, s *session, _ *pflag.FlagSet) error {
	return runTUI(a, s)
}
