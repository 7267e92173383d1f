// SPDX-License-Identifier: EPL-2.0

package audiofile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/wav"
)

// Import makes path playable at sampleRate. A WAV file already at that
// rate is used as is; anything else is decoded, resampled if needed and
// written as a WAV next to the original. It returns the path to open.
// An up to date conversion from an earlier import is reused.
func Import(path string, sampleRate, bitDepth int, registry *audio.Registry) (string, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	dec, ok := registry.ForPath(path)
	if !ok {
		return "", fmt.Errorf("importing %s: %w", path, ErrUnsupportedFormat)
	}

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("importing %s: %w", path, err)
	}
	defer in.Close()

	src, err := dec.Decode(in)
	if err != nil {
		return "", fmt.Errorf("importing %s: %w", path, err)
	}
	defer src.Close()

	if (ext == "wav" || ext == "wave") && src.SampleRate() == sampleRate {
		return path, nil
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "." + strconv.Itoa(sampleRate) + ".wav"
	if upToDate(out, path) {
		return out, nil
	}

	var s audio.Source = src
	if src.SampleRate() != sampleRate {
		s = audio.NewResampler(src, sampleRate)
	}

	if err := convert(out, s, sampleRate, bitDepth); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("importing %s: %w", path, err)
	}

	return out, nil
}

func upToDate(out, src string) bool {
	o, err := os.Stat(out)
	if err != nil {
		return false
	}

	s, err := os.Stat(src)
	if err != nil {
		return false
	}

	return !o.ModTime().Before(s.ModTime())
}

func convert(out string, src audio.Source, sampleRate, bitDepth int) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	defer f.Close()

	w, err := wav.NewWriter(f, sampleRate, src.Channels(), bitDepth)
	if err != nil {
		return err
	}

	buf := make([]float32, 4096*src.Channels())
	for {
		n, rerr := src.ReadSamples(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}

		if errors.Is(rerr, io.EOF) || (rerr == nil && n == 0) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("%w", rerr)
		}
	}

	if err := w.Close(); err != nil {
		return err
	}

	return f.Sync()
}
