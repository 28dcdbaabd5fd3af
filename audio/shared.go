package audio

import "sync"

var (
	sharedMu  sync.Mutex
	shared    Context
	sharedDev *DeviceInfo

	newContext = NewContext
)

// Shared returns the process-wide audio context, creating it on first use.
// A failed creation is not cached, so the next call tries again.
func Shared() (Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	c, err := newContext()
	if err != nil {
		return nil, err
	}
	shared = c
	return shared, nil
}

// SetShared installs c as the process-wide context. Used by test mode to
// route playback through a FakeContext.
func SetShared(c Context) {
	sharedMu.Lock()
	shared = c
	sharedMu.Unlock()
}

// CloseShared releases the process-wide context at exit.
func CloseShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		shared.Close()
		shared = nil
	}
}

// SetOutputDevice selects the device used for narration; nil means the
// system default.
func SetOutputDevice(d *DeviceInfo) {
	sharedMu.Lock()
	sharedDev = d
	sharedMu.Unlock()
}

func OutputDevice() *DeviceInfo {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return sharedDev
}
