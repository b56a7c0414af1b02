package geo

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/oschwald/maxminddb-golang"
)

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

type mmdbLookup struct {
	db *maxminddb.Reader
}

// OpenMMDB probes paths in order and opens the first readable GeoLite2 country file.
func OpenMMDB(paths []string, logger *slog.Logger) (Lookup, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		db, err := maxminddb.Open(path)
		if err != nil {
			if logger != nil {
				logger.Warn("geoip open failed", "path", path, "err", err)
			}
			continue
		}
		if logger != nil {
			logger.Info("geoip database loaded", "path", path)
		}
		return &mmdbLookup{db: db}, nil
	}
	return nil, ErrNoDatabase
}

func NewMMDBClassifier(paths []string, cacheSize int, logger *slog.Logger) *GeoClassifier {
	return NewClassifier(func() (Lookup, error) {
		return OpenMMDB(paths, logger)
	}, cacheSize, logger)
}

func (m *mmdbLookup) Country(ip net.IP) (string, error) {
	if ip == nil {
		return "", fmt.Errorf("invalid address")
	}
	var rec countryRecord
	_, ok, err := m.db.LookupNetwork(ip, &rec)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no entry for %s", ip)
	}
	if rec.Country.ISOCode != "" {
		return rec.Country.ISOCode, nil
	}
	if rec.RegisteredCountry.ISOCode != "" {
		return rec.RegisteredCountry.ISOCode, nil
	}
	return "", fmt.Errorf("no country code for %s", ip)
}

func (m *mmdbLookup) Close() error {
	return m.db.Close()
}
