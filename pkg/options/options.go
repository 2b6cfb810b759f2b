// Package options holds the command-line option groups shared by the vconsole
// and vsim binaries. Every group registers its own flags and validates itself;
// the mapstructure tags let viper fill the same structs from a config file.
package options

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/spf13/pflag"
)

var errTLSPair = errors.New("tls.cert-file and tls.key-file must be set together")

// IOptions is implemented by every option group.
type IOptions interface {
	Validate() []error
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a valid port.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not in a valid format (host:port): %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q has an invalid port", addr)
	}
	return nil
}

// ValidateURL checks that raw parses as an absolute URL with one of schemes.
func ValidateURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: %q has no host", name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s: scheme %q not one of %v", name, u.Scheme, schemes)
}
