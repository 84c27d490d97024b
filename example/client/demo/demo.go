// Package demo contains the scenario run by the example client over an initialized websocket
// chain: two echo messages, a ping/pong exchange and a read which times out.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/gbdevw/gowsnode/wsframe"
	"github.com/gbdevw/gowsnode/wsnode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Timeout used by the last read of the scenario, which is expected to time out
const timeoutProbe = time.Millisecond

// Example scenario run over a websocket chain
type Demo struct {
	// Chain, websocket node on top
	chain *pipeline.Chain
	// Websocket node of the chain, used to send control frames
	ws *wsnode.WSNode
	// Destination the chain connects to
	dst pipeline.Destination
	// Logger used to print exchanged messages
	logger *zap.Logger
	// Tracer used to trace the scenario steps
	tracer trace.Tracer
}

// # Description
//
// Factory which creates a new Demo.
//
// # Inputs
//
//   - chain: Chain which will be initialized by Connect. Its top layer must read and write
//     through ws (ws itself or a decorator of ws).
//   - ws: Websocket node of the chain.
//   - dst: Destination to connect to.
//   - logger: Logger used to print exchanged messages. Use a Nop logger if nil.
//   - tracerProvider: Tracer provider to use to get a tracer. Use global tracer provider if nil.
//
// # Returns
//
// A new Demo.
func NewDemo(
	chain *pipeline.Chain,
	ws *wsnode.WSNode,
	dst pipeline.Destination,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) *Demo {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &Demo{
		chain:  chain,
		ws:     ws,
		dst:    dst,
		logger: logger,
		tracer: tracerProvider.Tracer("gowsnode.example"),
	}
}

// # Description
//
// Initialize the chain. Init is retried up to attempts times, waiting retryDelay between two
// attempts.
//
// # Returns
//
// nil on success, the error of the last attempt otherwise.
func (demo *Demo) Connect(ctx context.Context, attempts int, retryDelay time.Duration) error {
	ctx, span := demo.tracer.Start(ctx, "gowsnode.example.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("destination", demo.dst.String())))
	defer span.End()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = demo.chain.Init(ctx, demo.dst); err == nil {
			demo.logger.Info("connected", zap.String("destination", demo.dst.String()), zap.Int("attempt", attempt))
			span.SetStatus(codes.Ok, codes.Ok.String())
			return nil
		}
		demo.logger.Warn("connection failed", zap.Int("attempt", attempt), zap.Error(err))
		demo.chain.Close()
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return handleError(span, ctx.Err(), codes.Error, codes.Error.String())
			case <-time.After(retryDelay):
			}
		}
	}
	return handleError(span, err, codes.Error, codes.Error.String())
}

// # Description
//
// Run the scenario over the connected chain:
//   - "hello" and "world" are sent and must be echoed,
//   - a ping is sent and a PONG | FIN frame must be received,
//   - a read with a 1ms timeout is made: a timeout is expected and reported with the layer
//     which timed out.
//
// # Returns
//
// nil if the scenario succeeded, an error otherwise.
func (demo *Demo) Run(ctx context.Context) error {
	ctx, span := demo.tracer.Start(ctx, "gowsnode.example.run", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	buf := pipeline.NewBuffer(make([]byte, 128))
	// Echo
	for _, msg := range []string{"hello", "world"} {
		echoed, err := demo.echo(ctx, msg, buf)
		if err != nil {
			return handleError(span, err, codes.Error, codes.Error.String())
		}
		demo.logger.Info("node read string", zap.String("message", echoed))
	}
	// Ping
	if err := demo.ping(ctx, buf); err != nil {
		return handleError(span, err, codes.Error, codes.Error.String())
	}
	// Timeout
	buf.Clear()
	err := demo.chain.Read(buf, pipeline.WithTimeout(timeoutProbe))
	if err == nil {
		demo.logger.Info("unexpected frame received", zap.ByteString("payload", buf.Bytes()))
	} else if nerr, ok := pipeline.AsNodeError(err); ok && nerr.Timeout() {
		demo.logger.Info("read timeout", zap.String("node", nerr.Node.Name()), zap.Int32("code", nerr.Code))
	} else {
		return handleError(span, err, codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// Send msg and read its echo in buf
func (demo *Demo) echo(ctx context.Context, msg string, buf *pipeline.Buffer) (string, error) {
	_, span := demo.tracer.Start(ctx, "gowsnode.example.echo", trace.WithAttributes(attribute.String("message", msg)))
	defer span.End()
	in := pipeline.NewBuffer([]byte(msg))
	in.Obtain(len(msg))
	if err := demo.chain.Write(in, nil); err != nil {
		return "", handleError(span, err, codes.Error, "write failed")
	}
	buf.Clear()
	if err := demo.chain.Read(buf, nil); err != nil {
		return "", handleError(span, err, codes.Error, "read failed")
	}
	echoed := string(buf.Bytes())
	if echoed != msg {
		return "", handleError(span, fmt.Errorf("unexpected echo %q for %q", echoed, msg), codes.Error, codes.Error.String())
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return echoed, nil
}

// Send a ping and read the pong in buf
func (demo *Demo) ping(ctx context.Context, buf *pipeline.Buffer) error {
	_, span := demo.tracer.Start(ctx, "gowsnode.example.ping")
	defer span.End()
	if err := demo.chain.Record(demo.ws.Ping(nil)); err != nil {
		return handleError(span, err, codes.Error, "ping failed")
	}
	var flags wsframe.Flags
	buf.Clear()
	if err := demo.chain.Read(buf, pipeline.WithFlags(&flags)); err != nil {
		return handleError(span, err, codes.Error, "read pong failed")
	}
	if flags.Opcode() != wsframe.OpcodePong || !flags.Fin() {
		return handleError(span, fmt.Errorf("read pong failed: ws flags is 0x%x", uint32(flags)), codes.Error, codes.Error.String())
	}
	demo.logger.Info("pong received", zap.Uint32("flags", uint32(flags)))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}

// Close the chain.
func (demo *Demo) Close() {
	demo.chain.Close()
	demo.logger.Info("connection closed")
}

// Helper function to record an error and set a span status in one instruction. The input error
// is returned as-is by the function.
func handleError(span trace.Span, err error, code codes.Code, description string) error {
	span.RecordError(err)
	span.SetStatus(code, description)
	return err
}
