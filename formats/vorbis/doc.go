// Package vorbis provides seekable Ogg Vorbis decoding using
// github.com/jfreymuth/oggvorbis.
//
// Samples are produced as interleaved float32 straight from the decoder.
// Length and SetPosition need an io.ReadSeeker; other inputs are buffered
// into memory by Decode.
package vorbis
