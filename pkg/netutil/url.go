package netutil

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ValidateHttpUrl validates a URL for an HTTP scheme. The host must either be
// an IP address or a valid domain name. No network calls are made.
func ValidateHttpUrl(value string, requireSecureConnection bool) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}

	if requireSecureConnection && parsed.Scheme != "https" {
		return errors.New("url scheme must be https")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}

	hostname := parsed.Hostname()
	if len(hostname) == 0 {
		return errors.New("host component missing")
	}

	if net.ParseIP(hostname) != nil {
		return nil
	}

	if err := ValidateDomainName(hostname); err != nil {
		return errors.Wrap(err, "host is not a valid domain name")
	}

	if strings.HasSuffix(hostname, ".") {
		return errors.New("host has a trailing dot")
	}

	return nil
}
