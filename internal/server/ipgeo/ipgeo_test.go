package ipgeo

import (
	"net/netip"
	"testing"
)

func TestTailscalePrefix(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"100.64.0.1", true},
		{"100.127.255.254", true},
		{"100.63.255.255", false},
		{"100.128.0.0", false},
	}
	for _, tt := range tests {
		addr := netip.MustParseAddr(tt.ip)
		if got := tailscalePrefix.Contains(addr); got != tt.want {
			t.Errorf("tailscalePrefix.Contains(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestCountryCodeLocal(t *testing.T) {
	// Local addresses never reach the MMDB reader.
	c := &Checker{}
	tests := []struct {
		ip   string
		want string
	}{
		{"127.0.0.1", Local},
		{"::1", Local},
		{"::ffff:127.0.0.1", Local},
		{"10.0.0.1", Local},
		{"192.168.1.1", Local},
		{"172.16.0.1", Local},
		{"0.0.0.0", Local},
		{"::", Local},
		{"169.254.1.1", Local},
		{"fe80::1", Local},
		{"100.64.0.1", Tailscale},
		{"100.100.100.100", Tailscale},
		{"8.8.8.8", ""},
	}
	for _, tt := range tests {
		if got := c.CountryCode(netip.MustParseAddr(tt.ip)); got != tt.want {
			t.Errorf("CountryCode(%q) = %q, want %q", tt.ip, got, tt.want)
		}
	}
}

func TestAdmit(t *testing.T) {
	open := &Checker{}
	if ok, _ := open.Admit(netip.MustParseAddr("8.8.8.8")); !ok {
		t.Error("empty allow list must admit everyone")
	}
	restricted := &Checker{allow: allowSet([]string{"ca", "FR"})}
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"100.64.0.1", true},
		// Unknown country without a database.
		{"8.8.8.8", false},
	}
	for _, tt := range tests {
		if ok, cc := restricted.Admit(netip.MustParseAddr(tt.ip)); ok != tt.want {
			t.Errorf("Admit(%s) = %v (%q), want %v", tt.ip, ok, cc, tt.want)
		}
	}
	if _, ok := restricted.allow["CA"]; !ok {
		t.Error("allow list is not upper cased")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open("/nonexistent/geo.mmdb", nil); err == nil {
		t.Error("expected error")
	}
}
