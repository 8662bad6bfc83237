// Package capture samples the desktop at a fixed interval and groups
// the resulting frames into fixed-length analysis windows, publishing
// one WindowReady event per window at most once.
package capture

import (
	"errors"
	"time"
)

// ErrScreenLocked and ErrBlackFrame are sentinels a Capturer returns
// when a sample should be silently skipped rather than treated as a
// failure — a locked screen saver or an all-black frame (common right
// after wake) carries no information.
var (
	ErrScreenLocked = errors.New("capture: screen is locked")
	ErrBlackFrame   = errors.New("capture: frame is black")
)

// Frame is one sample taken off the desktop.
type Frame struct {
	Timestamp time.Time // UTC, millisecond precision
	Path      string    // <frames_dir>/<epoch_millis>.jpg
}

// Capturer is the opaque screenshot acquisition primitive. Platform
// capture (macOS/Windows/Linux screen grab APIs) lives behind this
// interface; only its contract matters to the scheduler.
type Capturer interface {
	Capture() (Frame, error)
}
