package gateway

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintPrefix domain-separates the digest so that any change to the
// canonical serialization invalidates previously cached artifacts.
const fingerprintPrefix = "audio-gateway:v1\n"

// Fingerprint is the deterministic hex digest of a canonical string. The
// same value serves as cache key, result correlation id, and the
// X-Fingerprint response header.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(fingerprintPrefix + canonical))
	return hex.EncodeToString(sum[:])
}

// ShardedKey spreads a fingerprint over two directory levels: ab/cd/rest.
func ShardedKey(fingerprint string) string {
	if len(fingerprint) < 4 {
		return fingerprint
	}
	return fingerprint[:2] + "/" + fingerprint[2:4] + "/" + fingerprint[4:]
}

// ResultKey derives the durable result-store key for a processed artifact:
// the source name with a 20-hex-character digest suffix spliced in before
// the extension, the extension replaced when the params request a specific
// output format.
func ResultKey(canonical string, p *Params) string {
	sum := sha1.Sum([]byte(canonical))
	suffix := "." + hex.EncodeToString(sum[:10])

	audio := p.Audio
	audio = strings.TrimPrefix(audio, "https://")
	audio = strings.TrimPrefix(audio, "http://")

	dot := strings.LastIndex(audio, ".")
	slash := strings.LastIndex(audio, "/")
	if dot >= 0 && slash < dot {
		ext := audio[dot:]
		if p.Format != nil {
			ext = "." + p.Format.Extension()
		}
		return audio[:dot] + suffix + ext
	}
	return audio + suffix
}
