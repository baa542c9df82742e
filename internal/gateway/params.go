package gateway

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Params is the closed record of audio processing options parsed from the
// request query string. Every field is optional; a nil pointer means the
// client did not supply the key. Params are immutable once parsed.
type Params struct {
	// Audio is the raw source URI the parameters apply to.
	Audio string `json:"audio"`

	// Format and encoding.
	Format           *Format  `json:"format,omitempty"`
	Codec            *string  `json:"codec,omitempty"`
	SampleRate       *int     `json:"sample_rate,omitempty"`
	Channels         *int     `json:"channels,omitempty"`
	BitRate          *int     `json:"bit_rate,omitempty"`
	BitDepth         *int     `json:"bit_depth,omitempty"`
	Quality          *float64 `json:"quality,omitempty"`
	CompressionLevel *int     `json:"compression_level,omitempty"`

	// Time operations.
	StartTime *float64 `json:"start_time,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Reverse   *bool    `json:"reverse,omitempty"`

	// Volume operations.
	Volume         *float64 `json:"volume,omitempty"`
	Normalize      *bool    `json:"normalize,omitempty"`
	NormalizeLevel *float64 `json:"normalize_level,omitempty"`

	// Filters.
	Lowpass  *float64 `json:"lowpass,omitempty"`
	Highpass *float64 `json:"highpass,omitempty"`
	Bandpass *string  `json:"bandpass,omitempty"`
	Bass     *float64 `json:"bass,omitempty"`
	Treble   *float64 `json:"treble,omitempty"`

	// Effects. Free-form parameter strings handed to the external tool after
	// an allow-list check.
	Echo           *string `json:"echo,omitempty"`
	Reverb         *string `json:"reverb,omitempty"`
	Chorus         *string `json:"chorus,omitempty"`
	Flanger        *string `json:"flanger,omitempty"`
	Phaser         *string `json:"phaser,omitempty"`
	Tremolo        *string `json:"tremolo,omitempty"`
	Compressor     *string `json:"compressor,omitempty"`
	NoiseReduction *string `json:"noise_reduction,omitempty"`

	// Fades.
	FadeIn    *float64 `json:"fade_in,omitempty"`
	FadeOut   *float64 `json:"fade_out,omitempty"`
	CrossFade *float64 `json:"cross_fade,omitempty"`

	// Advanced.
	CustomFilters []string          `json:"custom_filters,omitempty"`
	CustomOptions []string          `json:"custom_options,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// ParseLimits carries the operator-configured parsing restrictions.
type ParseLimits struct {
	// DisabledFilters names effect and filter keys that must be rejected.
	DisabledFilters map[string]struct{}
	// MaxFilterOps bounds the total number of effect/filter fields present.
	// Zero means unlimited.
	MaxFilterOps int
}

const (
	minChannels = 1
	maxChannels = 8
)

// effectValueChars is the allow-list for effect parameter strings that are
// spliced into the filter graph.
const effectValueChars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_=:.|+-"

// ParseQuery converts raw query pairs into a typed Params value with strict
// validation. Unknown keys are ignored. Malformed or out-of-range values
// yield a BadRequest error naming the offending key.
func ParseQuery(audio string, values url.Values, limits ParseLimits) (*Params, error) {
	p := &Params{Audio: audio}

	for key := range values {
		value := values.Get(key)
		var err error
		switch key {
		case "format":
			var f Format
			if f, err = ParseFormat(value); err == nil {
				p.Format = &f
			}
		case "codec":
			p.Codec = &value
		case "sample_rate":
			p.SampleRate, err = parseInt(key, value, 1, math.MaxInt32)
		case "channels":
			p.Channels, err = parseInt(key, value, minChannels, maxChannels)
		case "bit_rate":
			p.BitRate, err = parseInt(key, value, 1, math.MaxInt32)
		case "bit_depth":
			p.BitDepth, err = parseInt(key, value, 1, 64)
		case "quality":
			p.Quality, err = parseFloat(key, value, 0, 1)
		case "compression_level":
			p.CompressionLevel, err = parseInt(key, value, 0, math.MaxInt32)
		case "start_time":
			p.StartTime, err = parseFloat(key, value, 0, math.MaxFloat64)
		case "duration":
			p.Duration, err = parsePositiveFloat(key, value)
		case "speed":
			p.Speed, err = parsePositiveFloat(key, value)
		case "reverse":
			p.Reverse, err = parseBool(key, value)
		case "volume":
			p.Volume, err = parseFloat(key, value, 0, math.MaxFloat64)
		case "normalize":
			p.Normalize, err = parseBool(key, value)
		case "normalize_level":
			p.NormalizeLevel, err = parseFloat(key, value, -70, 0)
		case "lowpass":
			p.Lowpass, err = parsePositiveFloat(key, value)
		case "highpass":
			p.Highpass, err = parsePositiveFloat(key, value)
		case "bandpass":
			p.Bandpass, err = parseEffect(key, value)
		case "bass":
			p.Bass, err = parseFloat(key, value, -math.MaxFloat64, math.MaxFloat64)
		case "treble":
			p.Treble, err = parseFloat(key, value, -math.MaxFloat64, math.MaxFloat64)
		case "echo":
			p.Echo, err = parseEffect(key, value)
		case "reverb":
			p.Reverb, err = parseEffect(key, value)
		case "chorus":
			p.Chorus, err = parseEffect(key, value)
		case "flanger":
			p.Flanger, err = parseEffect(key, value)
		case "phaser":
			p.Phaser, err = parseEffect(key, value)
		case "tremolo":
			p.Tremolo, err = parseEffect(key, value)
		case "compressor":
			p.Compressor, err = parseEffect(key, value)
		case "noise_reduction":
			p.NoiseReduction, err = parseEffect(key, value)
		case "fade_in":
			p.FadeIn, err = parseFloat(key, value, 0, math.MaxFloat64)
		case "fade_out":
			p.FadeOut, err = parseFloat(key, value, 0, math.MaxFloat64)
		case "cross_fade":
			p.CrossFade, err = parseFloat(key, value, 0, math.MaxFloat64)
		case "custom_filters":
			for _, v := range values[key] {
				if err = checkFilterGraph(key, v); err != nil {
					break
				}
			}
			if err == nil {
				p.CustomFilters = append([]string(nil), values[key]...)
			}
		case "custom_options":
			p.CustomOptions = append([]string(nil), values[key]...)
		default:
			if name, ok := strings.CutPrefix(key, "tag_"); ok && name != "" {
				if p.Tags == nil {
					p.Tags = make(map[string]string)
				}
				p.Tags[name] = value
			}
			// Unknown keys are ignored for forward compatibility.
		}
		if err != nil {
			return nil, err
		}
	}

	if err := p.checkLimits(limits); err != nil {
		return nil, err
	}
	return p, nil
}

// filterFields returns the names of the effect/filter fields present, in
// lexicographic order.
func (p *Params) filterFields() []string {
	var names []string
	add := func(name string, present bool) {
		if present {
			names = append(names, name)
		}
	}
	add("bandpass", p.Bandpass != nil)
	add("bass", p.Bass != nil)
	add("chorus", p.Chorus != nil)
	add("compressor", p.Compressor != nil)
	add("cross_fade", p.CrossFade != nil)
	add("echo", p.Echo != nil)
	add("fade_in", p.FadeIn != nil)
	add("fade_out", p.FadeOut != nil)
	add("flanger", p.Flanger != nil)
	add("highpass", p.Highpass != nil)
	add("lowpass", p.Lowpass != nil)
	add("noise_reduction", p.NoiseReduction != nil)
	add("normalize", p.Normalize != nil)
	add("phaser", p.Phaser != nil)
	add("reverb", p.Reverb != nil)
	add("reverse", p.Reverse != nil)
	add("speed", p.Speed != nil)
	add("treble", p.Treble != nil)
	add("tremolo", p.Tremolo != nil)
	add("volume", p.Volume != nil)
	return names
}

// FilterOps counts the effect/filter fields present, including each custom
// filter fragment.
func (p *Params) FilterOps() int {
	return len(p.filterFields()) + len(p.CustomFilters)
}

func (p *Params) checkLimits(limits ParseLimits) error {
	for _, name := range p.filterFields() {
		if _, ok := limits.DisabledFilters[name]; ok {
			return E(KindBadRequest, "filter disabled: %s", name)
		}
	}
	if len(p.CustomFilters) > 0 {
		if _, ok := limits.DisabledFilters["custom_filters"]; ok {
			return E(KindBadRequest, "filter disabled: custom_filters")
		}
	}
	if limits.MaxFilterOps > 0 && p.FilterOps() > limits.MaxFilterOps {
		return E(KindBadRequest, "too many filter operations: %d > %d", p.FilterOps(), limits.MaxFilterOps)
	}
	return nil
}

// Query renders the params back into their canonical query form: keys
// sorted lexicographically, floats in minimal notation, booleans as
// true/false, tags as tag_<name>=<value>.
func (p *Params) Query() url.Values {
	q := url.Values{}
	if p.Format != nil {
		q.Set("format", string(*p.Format))
	}
	setString(q, "codec", p.Codec)
	setInt(q, "sample_rate", p.SampleRate)
	setInt(q, "channels", p.Channels)
	setInt(q, "bit_rate", p.BitRate)
	setInt(q, "bit_depth", p.BitDepth)
	setFloat(q, "quality", p.Quality)
	setInt(q, "compression_level", p.CompressionLevel)
	setFloat(q, "start_time", p.StartTime)
	setFloat(q, "duration", p.Duration)
	setFloat(q, "speed", p.Speed)
	setBool(q, "reverse", p.Reverse)
	setFloat(q, "volume", p.Volume)
	setBool(q, "normalize", p.Normalize)
	setFloat(q, "normalize_level", p.NormalizeLevel)
	setFloat(q, "lowpass", p.Lowpass)
	setFloat(q, "highpass", p.Highpass)
	setString(q, "bandpass", p.Bandpass)
	setFloat(q, "bass", p.Bass)
	setFloat(q, "treble", p.Treble)
	setString(q, "echo", p.Echo)
	setString(q, "reverb", p.Reverb)
	setString(q, "chorus", p.Chorus)
	setString(q, "flanger", p.Flanger)
	setString(q, "phaser", p.Phaser)
	setString(q, "tremolo", p.Tremolo)
	setString(q, "compressor", p.Compressor)
	setString(q, "noise_reduction", p.NoiseReduction)
	setFloat(q, "fade_in", p.FadeIn)
	setFloat(q, "fade_out", p.FadeOut)
	setFloat(q, "cross_fade", p.CrossFade)
	for _, v := range p.CustomFilters {
		q.Add("custom_filters", v)
	}
	for _, v := range p.CustomOptions {
		q.Add("custom_options", v)
	}
	for k, v := range p.Tags {
		q.Set("tag_"+k, v)
	}
	return q
}

// QueryString renders the sorted, percent-encoded query string.
func (p *Params) QueryString() string {
	return p.Query().Encode()
}

// formatNum renders a float in its minimal textual form.
func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func setString(q url.Values, key string, v *string) {
	if v != nil {
		q.Set(key, *v)
	}
}

func setInt(q url.Values, key string, v *int) {
	if v != nil {
		q.Set(key, strconv.Itoa(*v))
	}
}

func setFloat(q url.Values, key string, v *float64) {
	if v != nil {
		q.Set(key, formatNum(*v))
	}
}

func setBool(q url.Values, key string, v *bool) {
	if v != nil {
		q.Set(key, strconv.FormatBool(*v))
	}
}

func parseInt(key, value string, min, max int) (*int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, E(KindBadRequest, "invalid value for %s: %q", key, value)
	}
	if n < min || n > max {
		return nil, E(KindBadRequest, "%s out of range: %d", key, n)
	}
	return &n, nil
}

func parseFloat(key, value string, min, max float64) (*float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, E(KindBadRequest, "invalid value for %s: %q", key, value)
	}
	if f < min || f > max {
		return nil, E(KindBadRequest, "%s out of range: %s", key, formatNum(f))
	}
	return &f, nil
}

func parsePositiveFloat(key, value string) (*float64, error) {
	f, err := parseFloat(key, value, 0, math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	if *f == 0 {
		return nil, E(KindBadRequest, "%s must be > 0", key)
	}
	return f, nil
}

func parseBool(key, value string) (*bool, error) {
	switch value {
	case "true", "1":
		b := true
		return &b, nil
	case "false", "0":
		b := false
		return &b, nil
	default:
		return nil, E(KindBadRequest, "invalid value for %s: %q", key, value)
	}
}

// parseEffect validates a free-form effect parameter string against the
// filter-expression allow-list.
func parseEffect(key, value string) (*string, error) {
	if value == "" {
		return nil, E(KindBadRequest, "empty value for %s", key)
	}
	for _, r := range value {
		if !strings.ContainsRune(effectValueChars, r) {
			return nil, E(KindBadRequest, "invalid character %q in %s", r, key)
		}
	}
	return &value, nil
}

// checkFilterGraph rejects custom filter-graph fragments containing text
// outside the tool's filter-graph grammar, in particular shell
// metacharacters.
func checkFilterGraph(key, value string) error {
	if value == "" {
		return E(KindBadRequest, "empty value for %s", key)
	}
	for _, r := range value {
		if !strings.ContainsRune(effectValueChars+",[]@", r) {
			return E(KindBadRequest, "invalid character %q in %s", r, key)
		}
	}
	return nil
}

// SortedPairs returns the params as key=value strings sorted by key, with
// values unescaped. Signing and fingerprinting do not use it: they go
// through CanonicalString, which embeds the percent-encoded QueryString.
func (p *Params) SortedPairs() []string {
	q := p.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []string
	for _, k := range keys {
		for _, v := range q[k] {
			pairs = append(pairs, k+"="+v)
		}
	}
	return pairs
}
