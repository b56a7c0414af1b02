package geo

import (
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	Local    = "LOCAL"
	Reserved = "RESERVED"
	Unknown  = "UNKNOWN"
)

var ErrNoDatabase = errors.New("geoip database not found")

// Classifier maps an IP literal to a country code or one of the reserved tags.
// Implementations never fail; anything they cannot resolve is Unknown.
type Classifier interface {
	Classify(ip string) string
}

// Lookup is the backing country database.
type Lookup interface {
	Country(ip net.IP) (string, error)
	Close() error
}

type Opener func() (Lookup, error)

// GeoClassifier opens its Lookup on the first address that needs one and keeps
// it until Close.
type GeoClassifier struct {
	mu       sync.Mutex
	open     Opener
	lookup   Lookup
	attempts bool
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

func NewClassifier(open Opener, cacheSize int, logger *slog.Logger) *GeoClassifier {
	c := &GeoClassifier{open: open, logger: logger}
	if cacheSize > 0 {
		if cache, err := lru.New[string, string](cacheSize); err == nil {
			c.cache = cache
		}
	}
	return c
}

func (c *GeoClassifier) Classify(ip string) string {
	if tag, ok := Precheck(ip); ok {
		return tag
	}
	if c.cache != nil {
		if tag, ok := c.cache.Get(ip); ok {
			return tag
		}
	}
	lookup := c.ensureOpen()
	if lookup == nil {
		return Unknown
	}
	code, err := lookup.Country(net.ParseIP(strings.TrimSpace(ip)))
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("geoip lookup failed", "ip", ip, "err", err)
		}
		return Unknown
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = Unknown
	}
	if c.cache != nil {
		c.cache.Add(ip, code)
	}
	return code
}

// Warm opens the backing database ahead of the first lookup.
func (c *GeoClassifier) Warm() bool {
	return c.ensureOpen() != nil
}

func (c *GeoClassifier) ensureOpen() Lookup {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts {
		return c.lookup
	}
	c.attempts = true
	if c.open == nil {
		return nil
	}
	lookup, err := c.open()
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("geoip disabled, countries resolve to UNKNOWN", "err", err)
		}
		return nil
	}
	c.lookup = lookup
	return lookup
}

func (c *GeoClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookup == nil {
		return nil
	}
	err := c.lookup.Close()
	c.lookup = nil
	return err
}

// Precheck resolves the tags that never need a database: local and reserved
// ranges, and literals that do not parse as an address.
func Precheck(ip string) (string, bool) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return Unknown, true
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() {
		return Local, true
	}
	if parsed.IsUnspecified() || parsed.Equal(net.IPv4bcast) {
		return Reserved, true
	}
	if v4 := parsed.To4(); v4 != nil && v4[0] == 0 {
		return Reserved, true
	}
	return "", false
}

// Static serves fixed tags, for tests and for hosts without a database.
type Static struct {
	Tags    map[string]string
	Default string
}

func (s Static) Classify(ip string) string {
	if tag, ok := s.Tags[ip]; ok {
		return tag
	}
	if tag, ok := Precheck(ip); ok {
		return tag
	}
	if s.Default != "" {
		return s.Default
	}
	return Unknown
}
