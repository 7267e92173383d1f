package region

import "errors"

var (
	ErrUnknownHandle = errors.New("file handle is not open")
	ErrSplitOutside  = errors.New("split point is outside the region")
)
