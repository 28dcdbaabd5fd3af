// Package clipboard copies weather reports to the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

// Available reports whether a clipboard backend was found at start-up.
func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

func Copy(text string) error {
	if !Available() {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}
