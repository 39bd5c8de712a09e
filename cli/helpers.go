package cli

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/fahmaliyi/pwmgr/vault"
)

var errPasswordMismatch = errors.New("passwords do not match")

// Prompter reads a secret without echoing it.
type Prompter interface {
	ReadSecret(prompt string) ([]byte, error)
}

// terminalPrompter reads from the controlling terminal with echo off, or
// one line at a time when stdin is not a terminal.
type terminalPrompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

func newTerminalPrompter(in *os.File, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, out: out}
}

func (p *terminalPrompter) ReadSecret(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)
	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		return pw, err
	}

	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	fmt.Fprintln(p.out)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// readNewSecret asks for a value twice and fails if the two differ.
func readNewSecret(p Prompter, prompt, confirm string) ([]byte, error) {
	first, err := p.ReadSecret(prompt)
	if err != nil {
		return nil, err
	}
	second, err := p.ReadSecret(confirm)
	if err != nil {
		vault.Zero(first)
		return nil, err
	}
	defer vault.Zero(second)

	if len(first) != len(second) || subtle.ConstantTimeCompare(first, second) != 1 {
		vault.Zero(first)
		return nil, errPasswordMismatch
	}
	return first, nil
}

// ensureParentDir creates the directory holding path, owner-only.
func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0700)
}
