package audiofile

import "errors"

var (
	ErrUnsupportedFormat = errors.New("no decoder for file extension")
	ErrNotOpen           = errors.New("audio file is not open")
	ErrReadOnly          = errors.New("audio file is not open for writing")
)
