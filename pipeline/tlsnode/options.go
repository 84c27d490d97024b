package tlsnode

import (
	"crypto/tls"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Defines configuration options for the TLS node.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type TLSNodeOptions struct {
	// TLS configuration used by the client. The configuration is cloned on Init. When its
	// ServerName is empty, the destination host is used.
	//
	// Defaults to an empty configuration (system roots, default versions and cipher suites).
	TLSConfig *tls.Config `validate:"-"`
	// Logger used by the node. A Nop logger is used when nil.
	Logger *zap.Logger `validate:"-"`
}

// # Description
//
// Set opts.TLSConfig and return the modified object. Method does not validate inputs.
//
// # Return
//
// The modified options.
func (opts *TLSNodeOptions) WithTLSConfig(value *tls.Config) *TLSNodeOptions {
	// Set and return
	opts.TLSConfig = value
	return opts
}

// Set opts.Logger and return the modified object.
func (opts *TLSNodeOptions) WithLogger(value *zap.Logger) *TLSNodeOptions {
	// Set and return
	opts.Logger = value
	return opts
}

// # Description
//
// Factory which creates a new TLSNodeOptions object with nice defaults.
//
// # Default settings
//
//   - TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
//   - Logger = nil (Nop logger)
func NewTLSNodeOptions() *TLSNodeOptions {
	return &TLSNodeOptions{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		Logger:    nil,
	}
}

// # Description
//
// Helper function which validates TLSNodeOptions. Options are valid if:
//   - opts is not nil
//   - opts.TLSConfig is not nil
//
// # Return
//
// Nil if options are valid, an error otherwise.
func Validate(opts *TLSNodeOptions) error {
	if opts == nil {
		return fmt.Errorf("tls node options must not be nil")
	}
	if opts.TLSConfig == nil {
		return fmt.Errorf("tls node options must provide a tls configuration")
	}
	return validator.New().Struct(opts)
}
