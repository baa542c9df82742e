package gateway

import (
	"net/url"
	"strings"
)

// SignatureUnsafe is the literal path segment that bypasses HMAC
// verification when the operator enables it.
const SignatureUnsafe = "unsafe"

// PathParts is the structured form of a gateway request path.
type PathParts struct {
	// Signature is the first path segment: either "unsafe" or a hex HMAC.
	Signature string
	// SourceURI is the raw audio URI that follows the signature.
	SourceURI string
}

// ParsePath splits /<sig>/<audio-uri> into its parts. The caller strips any
// route prefix (such as /params) before calling. The query string is not
// part of the path; net/http has already cut it at the first '?'.
func ParsePath(path string) (PathParts, error) {
	trimmed := strings.TrimPrefix(path, "/")
	sig, rest, ok := strings.Cut(trimmed, "/")
	if !ok || sig == "" || rest == "" {
		return PathParts{}, E(KindBadRequest, "path must be /<signature>/<audio-uri>")
	}
	uri, err := url.PathUnescape(rest)
	if err != nil {
		return PathParts{}, E(KindBadRequest, "malformed audio uri: %s", rest)
	}
	return PathParts{Signature: sig, SourceURI: uri}, nil
}

// SafeChars controls which bytes survive source-key normalization
// unescaped.
type SafeChars struct {
	noop  bool
	extra map[byte]struct{}
}

// NewSafeChars builds a SafeChars set from its configuration string. The
// empty string keeps the default set, "--" disables escaping entirely, and
// any other value adds its bytes to the default set.
func NewSafeChars(spec string) SafeChars {
	if spec == "--" {
		return SafeChars{noop: true}
	}
	s := SafeChars{}
	if spec != "" {
		s.extra = make(map[byte]struct{}, len(spec))
		for i := 0; i < len(spec); i++ {
			s.extra[spec[i]] = struct{}{}
		}
	}
	return s
}

func (s SafeChars) shouldEscape(c byte) bool {
	if s.noop {
		return false
	}
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return false
	}
	switch c {
	case '/', '-', '_', '.', '~':
		return false
	}
	if _, ok := s.extra[c]; ok {
		return false
	}
	return true
}

const upperHex = "0123456789ABCDEF"

// NormalizeKey canonicalizes a local or object-key source URI: strips line
// separators, trims slashes, and percent-escapes bytes outside the safe
// set (space becomes '+').
func NormalizeKey(key string, safe SafeChars) string {
	cleaned := strings.NewReplacer(
		"\r", "", "\n", "", "\v", "", "\f", "",
		"\u0085", "", "\u2028", "", "\u2029", "",
	).Replace(key)
	cleaned = strings.Trim(cleaned, "/")

	var b strings.Builder
	b.Grow(len(cleaned))
	for i := 0; i < len(cleaned); i++ {
		c := cleaned[i]
		switch {
		case !safe.shouldEscape(c):
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&15])
		}
	}
	return b.String()
}

// IsRemote reports whether the source URI names a remote HTTP(S) resource.
// The scheme is matched case-insensitively.
func IsRemote(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// NormalizeSource canonicalizes a source URI for signing and
// fingerprinting. Remote URLs get a lowercase scheme and host and are
// otherwise left alone; local paths and object keys go through
// NormalizeKey.
func NormalizeSource(uri string, safe SafeChars) string {
	if IsRemote(uri) {
		u, err := url.Parse(uri)
		if err != nil {
			return uri
		}
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		return u.String()
	}
	return NormalizeKey(uri, safe)
}

// CanonicalString produces the stable textual form of (source URI, params)
// shared by the signer and the fingerprint. An empty param set omits the
// '?' separator.
func CanonicalString(sourceURI string, p *Params, safe SafeChars) string {
	normalized := NormalizeSource(sourceURI, safe)
	query := p.QueryString()
	if query == "" {
		return normalized
	}
	return normalized + "?" + query
}
