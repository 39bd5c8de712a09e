//go:build linux || darwin

package cli

import "golang.org/x/sys/unix"

// DisableCoreDumps keeps the master key and decrypted passwords out of
// core files.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	rlim.Cur = 0
	rlim.Max = 0
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
