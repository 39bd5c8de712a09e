package cli

import (
	"github.com/atotto/clipboard"
)

type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// clearClipboard empties the clipboard unless something else has been
// copied since we put secret there.
func clearClipboard(c Clipboard, secret string) error {
	current, err := c.ReadAll()
	if err == nil && current != secret {
		return nil
	}
	return c.WriteAll("")
}
