package normalize

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// Host reduces a Host header or configured hostname to the form used for
// rule lookups: no port, no trailing dot, lowercase, IDNs in ASCII form.
// Inputs that IDNA rejects fall back to the lowercase form.
func Host(raw string) string {
	host := strings.TrimSpace(raw)
	if host == "" {
		return ""
	}

	host = StripPort(host)
	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	if host == "" {
		return ""
	}

	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		return ascii
	}
	return host
}

// CheckHost reports an error unless host, already passed through Host, is
// an IP literal or a name IDNA accepts for lookup.
func CheckHost(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return fmt.Errorf("host %q is not a valid hostname: %w", host, err)
	}
	return nil
}

func StripPort(hostport string) string {
	if hostport == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
		return hostport[1 : len(hostport)-1]
	}
	return hostport
}
