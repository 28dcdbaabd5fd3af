package typeahead

import "time"

// Timer is a pending debounce callback.
type Timer interface {
	Stop() bool
}

// Clock schedules debounce callbacks. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
