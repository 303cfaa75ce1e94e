package ssrf

import (
	"errors"
	"net/netip"
	"testing"
)

func TestIsBlockedHostname(t *testing.T) {
	blockedNames := []string{
		"localhost",
		"LOCALHOST",
		"localhost.",
		"metadata.google.internal",
		"foo.localhost",
		"printer.local",
		"db.prod.internal",
	}
	for _, name := range blockedNames {
		if !IsBlockedHostname(name) {
			t.Errorf("IsBlockedHostname(%q) = false, want true", name)
		}
	}

	allowed := []string{
		"example.com",
		"internal.example.com", // ".internal" is a suffix rule, not a substring rule
		"localhost.example.com",
		"",
	}
	for _, name := range allowed {
		if IsBlockedHostname(name) {
			t.Errorf("IsBlockedHostname(%q) = true, want false", name)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{
		"127.0.0.1",
		"127.255.255.254",
		"10.0.0.1",
		"172.16.0.1",
		"172.31.255.255",
		"192.168.1.1",
		"169.254.169.254", // cloud metadata
		"0.0.0.0",
		"::1",
		"fe80::1",
		"fd00::1",
		"fc00::1",
		"::",
		"::ffff:127.0.0.1",
		"::ffff:192.168.0.1",
	}
	for _, s := range private {
		addr := netip.MustParseAddr(s)
		if !IsPrivateIP(addr) {
			t.Errorf("IsPrivateIP(%s) = false, want true", s)
		}
	}

	public := []string{
		"8.8.8.8",
		"1.1.1.1",
		"172.32.0.1", // just past the 172.16/12 block
		"2001:4860:4860::8888",
		"::ffff:8.8.8.8",
	}
	for _, s := range public {
		addr := netip.MustParseAddr(s)
		if IsPrivateIP(addr) {
			t.Errorf("IsPrivateIP(%s) = true, want false", s)
		}
	}
}

func TestIsPrivateIPAddress_Strings(t *testing.T) {
	if !IsPrivateIPAddress("[::1]") {
		t.Error("bracketed IPv6 loopback not detected")
	}
	if !IsPrivateIPAddress(" 127.0.0.1 ") {
		t.Error("whitespace-wrapped loopback not detected")
	}
	if IsPrivateIPAddress("not-an-ip") {
		t.Error("hostname misclassified as private IP")
	}
	if IsPrivateIPAddress("example.com") {
		t.Error("domain misclassified as private IP")
	}
}

func TestValidatePublicHostname_Literals(t *testing.T) {
	rejected := []string{
		"localhost",
		"127.0.0.1",
		"10.1.2.3",
		"[::1]",
		"169.254.169.254",
		"metadata.google.internal",
		"",
	}
	for _, name := range rejected {
		if err := ValidatePublicHostname(name); err == nil {
			t.Errorf("ValidatePublicHostname(%q) = nil, want error", name)
		}
	}

	// Public IP literals pass without DNS.
	if err := ValidatePublicHostname("8.8.8.8"); err != nil {
		t.Errorf("ValidatePublicHostname(8.8.8.8) = %v", err)
	}
}

func TestBlockedErrorType(t *testing.T) {
	err := ValidatePublicHostname("127.0.0.1")
	var blockedErr *BlockedError
	if !errors.As(err, &blockedErr) {
		t.Fatalf("err = %T, want *BlockedError", err)
	}
	if blockedErr.Error() == "" {
		t.Error("empty error message")
	}
}
