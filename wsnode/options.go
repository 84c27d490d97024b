package wsnode

import (
	"fmt"
	"net/http"

	"github.com/gbdevw/gowsnode/wsframe"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Defines configuration options for the websocket node.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type WSNodeOptions struct {
	// Size of the scratch buffer used to write frames: header and masked payload chunks.
	//
	// Defaults to 4096. Must be at least 14 (largest frame header).
	WriteBufferSize int `validate:"gte=14"`
	// Size of the buffer used to receive the upgrade response headers.
	//
	// Defaults to 4096. Must be at least 128.
	HandshakeBufferSize int `validate:"gte=128"`
	// Additional headers sent with the upgrade request (Origin, Authorization, ...).
	//
	// Defaults to nil.
	Header http.Header `validate:"-"`
	// Logger used by the node. A Nop logger is used when nil.
	Logger *zap.Logger `validate:"-"`
}

// # Description
//
// Set opts.WriteBufferSize and return the modified object. Method does not validate inputs.
//
// # WriteBufferSize
//
// Size of the scratch buffer used to write frames. Payloads larger than the buffer are masked
// and written in several chunks.
//
// Defaults to 4096. Must be greater or equal to 14.
//
// # Return
//
// The modified options.
func (opts *WSNodeOptions) WithWriteBufferSize(value int) *WSNodeOptions {
	// Set and return
	opts.WriteBufferSize = value
	return opts
}

// # Description
//
// Set opts.HandshakeBufferSize and return the modified object. Method does not validate inputs.
//
// # HandshakeBufferSize
//
// Size of the buffer used to receive the upgrade response. Init fails with HANDSHAKE_FAILED when
// the response headers do not fit.
//
// Defaults to 4096. Must be greater or equal to 128.
//
// # Return
//
// The modified options.
func (opts *WSNodeOptions) WithHandshakeBufferSize(value int) *WSNodeOptions {
	// Set and return
	opts.HandshakeBufferSize = value
	return opts
}

// Set opts.Header and return the modified object.
func (opts *WSNodeOptions) WithHeader(value http.Header) *WSNodeOptions {
	// Set and return
	opts.Header = value
	return opts
}

// Set opts.Logger and return the modified object.
func (opts *WSNodeOptions) WithLogger(value *zap.Logger) *WSNodeOptions {
	// Set and return
	opts.Logger = value
	return opts
}

// # Description
//
// Factory which creates a new WSNodeOptions object with nice defaults.
//
// # Default settings
//
//   - WriteBufferSize = 4096
//   - HandshakeBufferSize = 4096
//   - Header = nil
//   - Logger = nil (Nop logger)
func NewWSNodeOptions() *WSNodeOptions {
	return &WSNodeOptions{
		WriteBufferSize:     4096,
		HandshakeBufferSize: 4096,
		Header:              nil,
		Logger:              nil,
	}
}

// # Description
//
// Helper function which validates WSNodeOptions. Options are valid if:
//   - opts is not nil
//   - opts.WriteBufferSize is greater or equal to 14
//   - opts.HandshakeBufferSize is greater or equal to 128
//
// # Return
//
// Nil if options are valid, an error otherwise.
func Validate(opts *WSNodeOptions) error {
	if opts == nil {
		return fmt.Errorf("websocket node options must not be nil")
	}
	if err := validator.New().Struct(opts); err != nil {
		return err
	}
	if opts.WriteBufferSize < wsframe.MaxHeaderLen {
		return fmt.Errorf("write buffer must be able to hold a %d bytes frame header", wsframe.MaxHeaderLen)
	}
	return nil
}
