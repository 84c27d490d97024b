package pipeline

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// Scheme of plain websocket destinations
	SchemeWS = "ws"
	// Scheme of websocket over TLS destinations
	SchemeWSS = "wss"
)

// Destination descriptor consumed by node Init.
type Destination struct {
	// ws or wss
	Scheme string `validate:"oneof=ws wss"`
	// Host name or IP address
	Host string `validate:"required"`
	// TCP port
	Port int `validate:"gte=1,lte=65535"`
	// Request path, including the query string if any. Must start with /.
	Path string `validate:"required,startswith=/"`
}

// # Description
//
// Parse a ws:// or wss:// URL into a validated Destination.
//
// Port defaults to 80 for ws and 443 for wss. Path defaults to /. The query string, if any, is
// kept in Path.
//
// # Returns
//
// The parsed Destination or an error if the URL cannot be parsed or the destination is invalid.
func ParseDestination(raw string) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("failed to parse destination %q: %w", raw, err)
	}
	dst := Destination{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Path:   u.RequestURI(),
	}
	if u.Port() != "" {
		dst.Port, err = strconv.Atoi(u.Port())
		if err != nil {
			return Destination{}, fmt.Errorf("invalid port in destination %q: %w", raw, err)
		}
	} else if dst.Scheme == SchemeWSS {
		dst.Port = 443
	} else {
		dst.Port = 80
	}
	if err := ValidateDestination(dst); err != nil {
		return Destination{}, err
	}
	return dst, nil
}

// ValidateDestination validates dst. It returns nil or validator.ValidationErrors.
func ValidateDestination(dst Destination) error {
	return validator.New().Struct(dst)
}

// Address returns host:port suitable for dialing.
func (dst Destination) Address() string {
	return net.JoinHostPort(dst.Host, strconv.Itoa(dst.Port))
}

// Secure returns true for wss destinations.
func (dst Destination) Secure() bool {
	return dst.Scheme == SchemeWSS
}

// HostHeader returns the value to use for the HTTP Host header: the port is omitted when it is
// the default port of the scheme.
func (dst Destination) HostHeader() string {
	if (dst.Scheme == SchemeWS && dst.Port == 80) || (dst.Scheme == SchemeWSS && dst.Port == 443) {
		if strings.Contains(dst.Host, ":") {
			return "[" + dst.Host + "]"
		}
		return dst.Host
	}
	return dst.Address()
}

func (dst Destination) String() string {
	return dst.Scheme + "://" + dst.Address() + dst.Path
}
