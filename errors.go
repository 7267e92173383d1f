package audstream

import "errors"

var (
	ErrRecording      = errors.New("session is already recording")
	ErrDuplicateTrack = errors.New("track name is taken")
	ErrClosed         = errors.New("session is shut down")
)
