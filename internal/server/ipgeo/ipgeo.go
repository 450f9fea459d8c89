// Package ipgeo admits or rejects client connections by country using
// MaxMind MMDB files.
package ipgeo

import (
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang/v2"
)

// Country codes returned for addresses that have no geographic location.
const (
	Local     = "local"
	Tailscale = "tailscale"
)

// Checker resolves IP addresses to ISO 3166-1 alpha-2 country codes.
type Checker struct {
	reader *maxminddb.Reader
	allow  map[string]struct{}
}

// Open opens an MMDB file. Only clients from the allowed countries are
// admitted; local and Tailscale addresses are always admitted. An empty
// allow list admits everyone.
func Open(dbPath string, allow []string) (*Checker, error) {
	r, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Checker{reader: r, allow: allowSet(allow)}, nil
}

func allowSet(countries []string) map[string]struct{} {
	if len(countries) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		m[strings.ToUpper(c)] = struct{}{}
	}
	return m
}

// Close releases the MMDB reader resources.
func (c *Checker) Close() error {
	return c.reader.Close()
}

// countryRecord is the minimal struct for MMDB country lookups.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// tailscalePrefix is the Tailscale CGNAT range 100.64.0.0/10.
var tailscalePrefix = netip.MustParsePrefix("100.64.0.0/10")

// CountryCode returns the ISO 3166-1 alpha-2 country code of addr.
// Returns Local for loopback, private, link-local and unspecified addresses,
// Tailscale for the Tailscale CGNAT range and "" when unknown.
func (c *Checker) CountryCode(addr netip.Addr) string {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return Local
	}
	if tailscalePrefix.Contains(addr) {
		return Tailscale
	}
	if c.reader == nil {
		return ""
	}
	var rec countryRecord
	if err := c.reader.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

// Admit reports whether a client at addr may connect, and its country code.
func (c *Checker) Admit(addr netip.Addr) (bool, string) {
	cc := c.CountryCode(addr)
	if c.allow == nil || cc == Local || cc == Tailscale {
		return true, cc
	}
	_, ok := c.allow[cc]
	return ok, cc
}
