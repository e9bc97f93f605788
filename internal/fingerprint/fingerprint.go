// Package fingerprint turns a loosely structured update-check response into a
// comparable Fingerprint.
package fingerprint

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when a response carries none of the recognised version fields.
var ErrMalformedResponse = errors.New("malformed update response")

// RawUpdateResponse is the flattened attribute map of one update-check response.
// The update server adds and removes fields at will, so nothing in it is guaranteed.
type RawUpdateResponse map[string]string

// Canonical keys filled in by the update client when the matching attribute is present.
const (
	KeyAppVersion      = "app_version"
	KeyPlatformVersion = "platform_version"
	KeyBoardCodename   = "board_codename"
	KeyEOLDate         = "eol_date"
	KeyStatus          = "status"
)

// Fingerprint identifies the update state of a device. Only Version takes
// part in equality; Product and EOL are for display.
type Fingerprint struct {
	Version string `json:"version"`
	Product string `json:"product"`
	EOL     string `json:"eol,omitempty"`
}

// Equal reports whether both fingerprints describe the same software version.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Version == other.Version
}

// EOLTime parses EOL, returning false when it is unset or invalid.
func (f Fingerprint) EOLTime() (time.Time, bool) {
	if f.EOL == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, f.EOL)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Extractor pulls one logical field out of a response. Keys are tried in
// order and the first non-blank value wins.
type Extractor struct {
	Name string
	Keys []string
}

func (e Extractor) Extract(raw RawUpdateResponse) (string, bool) {
	for _, key := range e.Keys {
		if v := strings.TrimSpace(raw[key]); v != "" {
			return v, true
		}
	}
	return "", false
}

// DefaultVersionExtractors lists version fields in priority order: the
// browser version users see first, the platform build second.
var DefaultVersionExtractors = []Extractor{
	{Name: KeyAppVersion, Keys: []string{KeyAppVersion, "ChromeVersion"}},
	{Name: KeyPlatformVersion, Keys: []string{KeyPlatformVersion, "ChromeOSVersion"}},
}

var DefaultCodenameExtractors = []Extractor{
	{Name: KeyBoardCodename, Keys: []string{KeyBoardCodename, "codename"}},
}

// ProductResolver maps a product lookup key to a marketing name.
type ProductResolver interface {
	ResolveProductName(ctx context.Context, key string) (string, bool)
}

type Normalizer struct {
	versions  []Extractor
	codenames []Extractor
	resolver  ProductResolver
}

type Option func(*Normalizer)

// WithVersionExtractors replaces the version extractor list.
func WithVersionExtractors(extractors ...Extractor) Option {
	return func(n *Normalizer) {
		n.versions = extractors
	}
}

// WithCodenameExtractors replaces the codename extractor list.
func WithCodenameExtractors(extractors ...Extractor) Option {
	return func(n *Normalizer) {
		n.codenames = extractors
	}
}

// NewNormalizer returns a Normalizer using resolver for product names. resolver may be nil.
func NewNormalizer(resolver ProductResolver, opts ...Option) *Normalizer {
	n := &Normalizer{
		versions:  DefaultVersionExtractors,
		codenames: DefaultCodenameExtractors,
		resolver:  resolver,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the fingerprint of raw for the given device.
func (n *Normalizer) Normalize(ctx context.Context, raw RawUpdateResponse, deviceID, productKey string) (Fingerprint, error) {
	version, ok := firstMatch(n.versions, raw)
	if !ok {
		return Fingerprint{}, ErrMalformedResponse
	}

	return Fingerprint{
		Version: version,
		Product: n.productLabel(ctx, raw, deviceID, productKey),
		EOL:     eolDate(raw[KeyEOLDate]),
	}, nil
}

func (n *Normalizer) productLabel(ctx context.Context, raw RawUpdateResponse, deviceID, productKey string) string {
	if n.resolver != nil && productKey != "" {
		if name, ok := n.resolver.ResolveProductName(ctx, productKey); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}
	if codename, ok := firstMatch(n.codenames, raw); ok {
		return codename
	}
	return deviceID
}

func firstMatch(extractors []Extractor, raw RawUpdateResponse) (string, bool) {
	for _, e := range extractors {
		if v, ok := e.Extract(raw); ok {
			return v, true
		}
	}
	return "", false
}

// eolDate converts the update server's "days since epoch" value to a date.
func eolDate(days string) string {
	if days == "" {
		return ""
	}
	n, err := strconv.ParseInt(strings.TrimSpace(days), 10, 64)
	if err != nil || n <= 0 {
		return ""
	}
	return time.Unix(n*24*60*60, 0).UTC().Format(time.DateOnly)
}
