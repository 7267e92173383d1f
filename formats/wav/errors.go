package wav

import "errors"

var (
	ErrNotWavFile           = errors.New("not a WAV file")
	ErrUnsupportedWavLayout = errors.New("unsupported WAV layout")
	ErrUnsupportedBitDepth  = errors.New("unsupported WAV bit depth")
	ErrUnsupportedEncoding  = errors.New("only PCM and IEEE float WAV supported")
	ErrWriterClosed         = errors.New("WAV writer already closed")
)
