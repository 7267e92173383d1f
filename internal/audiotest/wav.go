// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV renders src into a 16-bit PCM WAV file inside dir and returns its path.
func WriteWAV(t testing.TB, dir, name string, src *MockSource) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("audiotest: create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, src.SampleRate(), 16, src.Channels(), 1)

	buf := make([]float32, 1024*src.Channels())
	ints := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: src.Channels(), SampleRate: src.SampleRate()},
		SourceBitDepth: 16,
	}

	for {
		n, rerr := src.ReadSamples(buf)
		if n > 0 {
			ints.Data = ints.Data[:0]
			for _, v := range buf[:n] {
				ints.Data = append(ints.Data, Quantize16(v))
			}
			if err := enc.Write(ints); err != nil {
				t.Fatalf("audiotest: write %s: %v", path, err)
			}
		}
		if errors.Is(rerr, io.EOF) || n == 0 {
			break
		}
		if rerr != nil {
			t.Fatalf("audiotest: read source: %v", rerr)
		}
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("audiotest: close %s: %v", path, err)
	}

	src.Reset()
	return path
}

// Quantize16 converts a float sample to the int16 value the WAV fixture stores.
func Quantize16(v float32) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(v * 32767)
}

// Dequantize16 is the float value a 16-bit reader yields for a stored sample.
func Dequantize16(v float32) float32 {
	return float32(Quantize16(v)) / 32768
}
