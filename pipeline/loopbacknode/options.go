package loopbacknode

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Defines configuration options for the loopback node.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type LoopbackNodeOptions struct {
	// Maximum number of bytes accepted by a single Write call. 0 means no limit.
	//
	// Defaults to 0.
	MaxWriteChunk int `validate:"gte=0"`
	// Maximum number of bytes delivered by a single Read call. 0 means no limit.
	//
	// Defaults to 0.
	MaxReadChunk int `validate:"gte=0"`
	// Builds the raw response sent to the upgrade request from the client Sec-WebSocket-Key.
	// When nil, a valid 101 Switching Protocols response is sent.
	UpgradeResponse func(key string) []byte `validate:"-"`
	// Logger used by the node. A Nop logger is used when nil.
	Logger *zap.Logger `validate:"-"`
}

// # Description
//
// Set opts.MaxWriteChunk and return the modified object. Method does not validate inputs.
//
// # MaxWriteChunk
//
// Maximum number of bytes the node consumes per Write call. Use it to simulate a transport which
// only accepts part of the provided bytes.
//
// # Return
//
// The modified options.
func (opts *LoopbackNodeOptions) WithMaxWriteChunk(value int) *LoopbackNodeOptions {
	// Set and return
	opts.MaxWriteChunk = value
	return opts
}

// # Description
//
// Set opts.MaxReadChunk and return the modified object. Method does not validate inputs.
//
// # MaxReadChunk
//
// Maximum number of bytes the node delivers per Read call. Use it to simulate split deliveries.
//
// # Return
//
// The modified options.
func (opts *LoopbackNodeOptions) WithMaxReadChunk(value int) *LoopbackNodeOptions {
	// Set and return
	opts.MaxReadChunk = value
	return opts
}

// Set opts.UpgradeResponse and return the modified object.
func (opts *LoopbackNodeOptions) WithUpgradeResponse(value func(key string) []byte) *LoopbackNodeOptions {
	// Set and return
	opts.UpgradeResponse = value
	return opts
}

// Set opts.Logger and return the modified object.
func (opts *LoopbackNodeOptions) WithLogger(value *zap.Logger) *LoopbackNodeOptions {
	// Set and return
	opts.Logger = value
	return opts
}

// Factory which creates a new LoopbackNodeOptions object with no chunking, a valid upgrade
// response and a Nop logger.
func NewLoopbackNodeOptions() *LoopbackNodeOptions {
	return &LoopbackNodeOptions{
		MaxWriteChunk:   0,
		MaxReadChunk:    0,
		UpgradeResponse: nil,
		Logger:          nil,
	}
}

// Helper function which validates LoopbackNodeOptions. Options are valid if opts is not nil and
// chunk sizes are not negative.
func Validate(opts *LoopbackNodeOptions) error {
	if opts == nil {
		return fmt.Errorf("loopback node options must not be nil")
	}
	return validator.New().Struct(opts)
}
