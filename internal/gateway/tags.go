package gateway

import (
	"os"
	"time"
)

// Version is stamped into output metadata; overridden at build time via
// -ldflags.
var Version = "dev"

const maxTagValueLength = 256

// BuildTags merges the operator-configured constant tags with the default
// provenance tags attached to every output. Request tags are layered on top
// by the processor. Tag names must be alphanumeric or underscore; values
// are capped at 256 bytes.
func BuildTags(customTags map[string]string) (map[string]string, error) {
	host, _ := os.Hostname()
	tags := map[string]string{
		"processor": "audio-gateway",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"host":      host,
		"version":   Version,
	}

	for name, value := range customTags {
		if !validTagName(name) {
			return nil, E(KindBadRequest, "invalid tag name: %s", name)
		}
		if len(value) > maxTagValueLength {
			return nil, E(KindBadRequest, "tag value too long: %s", name)
		}
		tags[name] = value
	}
	return tags, nil
}

func validTagName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
