// Package recovery resolves ChromeOS hardware classes to marketing names using
// the public recovery image catalogs.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultTTL = 24 * time.Hour

	// failureBackoff delays the next fetch after a failed refresh so a down
	// catalog host is not hit once per device.
	failureBackoff = 5 * time.Minute
)

// Record is a single entry of recovery2.json. Only the fields needed for
// name resolution are decoded.
type Record struct {
	Name      string `json:"name"`
	HWIDMatch string `json:"hwidmatch"`
}

type entry struct {
	name  string
	match *regexp.Regexp
}

// Catalog caches the parsed recovery catalogs and implements
// fingerprint.ProductResolver.
type Catalog struct {
	urls   []string
	client *http.Client
	ttl    time.Duration
	log    zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	entries   []entry
	fetchedAt time.Time
	retryAt   time.Time
}

type Option func(*Catalog)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Catalog) {
		if client != nil {
			c.client = client
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Catalog) {
		c.log = log
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

func NewCatalog(urls []string, opts ...Option) *Catalog {
	c := &Catalog{
		urls:   urls,
		client: &http.Client{Timeout: 30 * time.Second},
		ttl:    DefaultTTL,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveProductName returns the name of the first record whose hwidmatch
// pattern matches the whole hardware class. Lookup failures are reported as
// not found.
func (c *Catalog) ResolveProductName(ctx context.Context, hardwareClass string) (string, bool) {
	if hardwareClass == "" {
		return "", false
	}

	entries := c.current(ctx)
	for _, e := range entries {
		if e.match.MatchString(hardwareClass) {
			return e.name, true
		}
	}
	return "", false
}

func (c *Catalog) current(ctx context.Context) []entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stale := c.fetchedAt.IsZero() || now.Sub(c.fetchedAt) >= c.ttl
	if stale && !now.Before(c.retryAt) {
		if err := c.refreshLocked(ctx); err != nil {
			c.retryAt = now.Add(failureBackoff)
			c.log.Warn().Err(err).Int("cached_records", len(c.entries)).Msg("Failed to refresh recovery catalog")
		}
	}
	return c.entries
}

// Refresh fetches every catalog now, regardless of the cache age.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Catalog) refreshLocked(ctx context.Context) error {
	var (
		entries []entry
		errs    []error
	)

	for _, url := range c.urls {
		records, err := c.fetch(ctx, url)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, compile(records, c.log)...)
	}

	if len(errs) > 0 && len(errs) == len(c.urls) {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		c.log.Warn().Err(err).Msg("Skipping unavailable recovery catalog")
	}

	c.entries = entries
	c.fetchedAt = c.now()
	c.retryAt = time.Time{}
	c.log.Debug().Int("records", len(entries)).Msg("Recovery catalog refreshed")
	return nil
}

func (c *Catalog) fetch(ctx context.Context, url string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("catalog %s returned %s", url, resp.Status)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", url, err)
	}
	return records, nil
}

// compile anchors each pattern so it must match the whole hardware class.
// Patterns RE2 cannot express are skipped.
func compile(records []Record, log zerolog.Logger) []entry {
	entries := make([]entry, 0, len(records))
	for _, r := range records {
		if r.HWIDMatch == "" || r.Name == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + r.HWIDMatch + ")$")
		if err != nil {
			log.Debug().Err(err).Str("name", r.Name).Msg("Skipping recovery record with unsupported pattern")
			continue
		}
		entries = append(entries, entry{name: r.Name, match: re})
	}
	return entries
}
