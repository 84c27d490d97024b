package providers

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/gbdevw/gowsnode/example/client/configuration"
	"github.com/gbdevw/gowsnode/example/client/demo"
	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/gbdevw/gowsnode/pipeline/loopbacknode"
	"github.com/gbdevw/gowsnode/pipeline/socketnode"
	"github.com/gbdevw/gowsnode/pipeline/tlsnode"
	"github.com/gbdevw/gowsnode/wsnode"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// # Description
//
// Build the chain described by the configuration and the demo which runs over it. Each layer
// is wrapped in an instrumentation decorator.
//
//   - network transport: websocket -> tls (wss only) -> socket
//   - loopback transport: websocket -> loopback
func ProvideDemo(config configuration.Configuration, logger *zap.Logger, tracerProvider trace.TracerProvider) (*demo.Demo, error) {
	dst, err := pipeline.ParseDestination(config.ServerUrl)
	if err != nil {
		return nil, err
	}
	// Websocket node
	ws, err := wsnode.NewWSNode(wsnode.NewWSNodeOptions().WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if key, fixed := config.MaskingKeyBytes(); fixed {
		ws.SetMaskingKey(key)
	}
	layers := []pipeline.NodeInterface{ws}
	// Lower layers
	switch config.Transport {
	case configuration.TransportLoopback:
		loopback, err := loopbacknode.NewLoopbackNode(loopbacknode.NewLoopbackNodeOptions().WithLogger(logger))
		if err != nil {
			return nil, err
		}
		layers = append(layers, loopback)
	default:
		if dst.Secure() {
			secure, err := tlsnode.NewTLSNode(tlsnode.NewTLSNodeOptions().
				WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: config.InsecureSkipVerify}).
				WithLogger(logger))
			if err != nil {
				return nil, err
			}
			layers = append(layers, secure)
		}
		socket, err := socketnode.NewSocketNode(socketnode.NewSocketNodeOptions().
			WithConnectTimeout(10 * time.Second).
			WithLogger(logger))
		if err != nil {
			return nil, err
		}
		layers = append(layers, socket)
	}
	// Instrument layers
	for i, layer := range layers {
		decorated, err := pipeline.NewNodeInstrumentationDecorator(layer, tracerProvider, nil)
		if err != nil {
			return nil, err
		}
		layers[i] = decorated
	}
	chain, err := pipeline.NewChain(layers...)
	if err != nil {
		return nil, err
	}
	return demo.NewDemo(chain, ws, dst, logger, tracerProvider), nil
}

// # Description
//
// Register the hooks which run the demo: the chain is connected and the scenario is run in a
// goroutine once the application has started, then the application is shut down with exit
// code 1 if the scenario failed.
func RunDemo(lc fx.Lifecycle, shutdowner fx.Shutdowner, d *demo.Demo, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				exitCode := 0
				if err := d.Connect(ctx, 3, 2*time.Second); err != nil {
					logger.Error("failed to connect", zap.Error(err))
					exitCode = 1
				} else if err := d.Run(ctx); err != nil {
					logger.Error("demo failed", zap.Error(err))
					exitCode = 1
				}
				d.Close()
				if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					logger.Error("failed to shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			// Stop retries and wait for the demo to exit
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
