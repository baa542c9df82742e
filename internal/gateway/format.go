package gateway

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format identifies an output audio container.
type Format string

// Supported output containers.
const (
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatFLAC    Format = "flac"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
	FormatOpus    Format = "opus"
	FormatUnknown Format = ""
)

// ParseFormat parses a format query value. Unrecognized names are rejected.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "mp3":
		return FormatMP3, nil
	case "wav":
		return FormatWAV, nil
	case "flac":
		return FormatFLAC, nil
	case "ogg":
		return FormatOGG, nil
	case "m4a":
		return FormatM4A, nil
	case "opus":
		return FormatOpus, nil
	default:
		return FormatUnknown, E(KindBadRequest, "unknown audio format %q", s)
	}
}

// MIMEType maps the container to its Content-Type. The gateway default is
// audio/mpeg.
func (f Format) MIMEType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatFLAC:
		return "audio/flac"
	case FormatOGG:
		return "audio/ogg"
	case FormatM4A:
		return "audio/mp4"
	case FormatOpus:
		return "audio/opus"
	default:
		return "audio/mpeg"
	}
}

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return "mp3"
	}
	return string(f)
}

// DetectFormat sniffs a container from magic bytes, falling back to the file
// extension of name when the header is inconclusive.
func DetectFormat(data []byte, name string) Format {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFB}), bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case len(data) >= 12 && bytes.Equal(data[4:12], []byte("ftypM4A ")):
		return FormatM4A
	case bytes.HasPrefix(data, []byte("OpusHead")):
		return FormatOpus
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return FormatUnknown
}
