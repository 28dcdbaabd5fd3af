package audio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

// FindDevice returns the device whose ID matches exactly or whose name
// contains query, case-insensitively.
func FindDevice(ctx Context, query string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	q := strings.ToLower(query)
	for i, d := range devices {
		if d.ID == query || strings.Contains(strings.ToLower(d.Name), q) {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("no output device matches %q", query)
}

// SelectDevice presents an interactive picker of output devices and returns
// the selected one. If only one device is available it is returned without
// prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("no output devices found")
	}

	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderList := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select narration output (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			btTag := ""
			if IsBluetooth(d.Name) {
				btTag = " \x1b[33m[⚠ lip sync may lag]\x1b[0m"
			}
			if i == cursor {
				fmt.Printf("  \x1b[1;33m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
			} else {
				fmt.Printf("    %s%s\r\n", d.Name, btTag)
			}
		}
	}

	renderList()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		if n == 1 {
			switch buf[0] {
			case 13: // Enter
				fmt.Print("\r\n")
				return &devices[cursor], nil
			case 3, 'q': // Ctrl+C
				fmt.Print("\r\n")
				return nil, ErrSelectionCancelled
			case 'j':
				cursor = moveCursor(cursor, 1, len(devices))
			case 'k':
				cursor = moveCursor(cursor, -1, len(devices))
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A': // Up arrow
				cursor = moveCursor(cursor, -1, len(devices))
			case 'B': // Down arrow
				cursor = moveCursor(cursor, 1, len(devices))
			}
		}

		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderList()
	}
}

func moveCursor(cursor, delta, n int) int {
	cursor += delta
	if cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
