package socketnode

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Defines configuration options for the socket node.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type SocketNodeOptions struct {
	// Maximum delay to establish the TCP connection. It applies in addition to the deadline of the
	// context provided to Init.
	//
	// Defaults to 30 seconds. 0 disables the timeout.
	ConnectTimeout time.Duration `validate:"gte=0"`
	// Read timeout used when no timeout is provided through NodeArgs.
	//
	// Defaults to 0 (no timeout).
	ReadTimeout time.Duration `validate:"gte=0"`
	// Logger used by the node. A Nop logger is used when nil.
	Logger *zap.Logger `validate:"-"`
}

// # Description
//
// Set opts.ConnectTimeout and return the modified object. Method does not validate inputs.
//
// # Return
//
// The modified options.
func (opts *SocketNodeOptions) WithConnectTimeout(value time.Duration) *SocketNodeOptions {
	// Set and return
	opts.ConnectTimeout = value
	return opts
}

// # Description
//
// Set opts.ReadTimeout and return the modified object. Method does not validate inputs.
//
// # Return
//
// The modified options.
func (opts *SocketNodeOptions) WithReadTimeout(value time.Duration) *SocketNodeOptions {
	// Set and return
	opts.ReadTimeout = value
	return opts
}

// Set opts.Logger and return the modified object.
func (opts *SocketNodeOptions) WithLogger(value *zap.Logger) *SocketNodeOptions {
	// Set and return
	opts.Logger = value
	return opts
}

// # Description
//
// Factory which creates a new SocketNodeOptions object with nice defaults.
//
// # Default settings
//
//   - ConnectTimeout = 30s
//   - ReadTimeout = 0 (reads block until data is available unless a timeout is provided)
//   - Logger = nil (Nop logger)
func NewSocketNodeOptions() *SocketNodeOptions {
	return &SocketNodeOptions{
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    0,
		Logger:         nil,
	}
}

// # Description
//
// Helper function which validates SocketNodeOptions. Options are valid if:
//   - opts is not nil
//   - opts.ConnectTimeout is greater or equal to 0
//   - opts.ReadTimeout is greater or equal to 0
//
// # Return
//
// Nil if options are valid, an error otherwise.
func Validate(opts *SocketNodeOptions) error {
	if opts == nil {
		return fmt.Errorf("socket node options must not be nil")
	}
	return validator.New().Struct(opts)
}
