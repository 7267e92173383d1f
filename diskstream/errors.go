package diskstream

import "errors"

var (
	ErrStreamActive = errors.New("disk stream is running")
	ErrNoCapturer   = errors.New("record stream has no capturer")
)
