// SPDX-License-Identifier: EPL-2.0

// Package config reads engine settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Capture formats accepted by AUDSTREAM_CAPTURE_FORMAT.
const (
	CaptureWAV16 = "wav16"
	CaptureWAV24 = "wav24"
)

type Config struct {
	// SecondsToBuffer is how much audio each disk stream keeps in its rings.
	SecondsToBuffer float64
	// DiskIOKBytes caps the size of one disk read or write.
	DiskIOKBytes int
	// CaptureFormat is the file format new recordings are written in.
	CaptureFormat string
	// MipmappedPeakfiles enables the coarse peak levels after the base block.
	MipmappedPeakfiles bool
	SampleRate         int
	BlockSize          int
}

func Load() *Config {
	c := &Config{
		SecondsToBuffer:    getEnvFloat("AUDSTREAM_SECONDS_TO_BUFFER", 2.0),
		DiskIOKBytes:       getEnvInt("AUDSTREAM_DISK_IO_KBYTES", 256),
		CaptureFormat:      strings.ToLower(getEnv("AUDSTREAM_CAPTURE_FORMAT", CaptureWAV24)),
		MipmappedPeakfiles: getEnvBool("AUDSTREAM_MIPMAPPED_PEAKFILES", true),
		SampleRate:         getEnvInt("AUDSTREAM_SAMPLE_RATE", 48000),
		BlockSize:          getEnvInt("AUDSTREAM_BLOCK_SIZE", 1024),
	}

	if c.CaptureFormat != CaptureWAV16 && c.CaptureFormat != CaptureWAV24 {
		c.CaptureFormat = CaptureWAV24
	}

	return c
}

// CaptureBitDepth maps the capture format to a PCM bit depth.
func (c *Config) CaptureBitDepth() int {
	if c.CaptureFormat == CaptureWAV16 {
		return 16
	}
	return 24
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
