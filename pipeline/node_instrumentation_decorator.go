package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// A decorator which can be used to automatically instrument any layer of a chain with spans
// and byte/error counters.
//
// Read and Write do not take a context: their spans are children of the context provided to
// the last Init call.
type NodeInstrumentationDecorator struct {
	// Decorated node
	decorated NodeInterface
	// Tracer used for instrumentation
	tracer trace.Tracer
	// Counters
	bytesRead    metric.Int64Counter
	bytesWritten metric.Int64Counter
	errors       metric.Int64Counter
	// Context provided to Init. Parent of Read/Write/Close spans.
	ctx context.Context
}

// # Description
//
// Create a new decorator which will automatically instrument the provided node.
//
// # Inputs
//
//   - decorated: Node to instrument. Must not be nil.
//   - tracerProvider: Tracer provider used to get a tracer. If nil, global tracer provider is used.
//   - meterProvider: Meter provider used to get a meter. If nil, global meter provider is used.
//
// # Returns
//
// The decorator or an error if decorated is nil or if counters cannot be created.
func NewNodeInstrumentationDecorator(
	decorated NodeInterface,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) (*NodeInstrumentationDecorator, error) {
	if decorated == nil {
		return nil, errNilDecorated
	}
	// Use global providers if not provided
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	// Create counters
	meter := meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion))
	bytesRead, err := meter.Int64Counter(metricBytesRead,
		metric.WithDescription("Number of bytes read from the node"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	bytesWritten, err := meter.Int64Counter(metricBytesWritten,
		metric.WithDescription("Number of bytes consumed by the node on write"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter(metricErrors,
		metric.WithDescription("Number of failed node calls"))
	if err != nil {
		return nil, err
	}
	// Build and return decorator
	return &NodeInstrumentationDecorator{
		decorated:    decorated,
		tracer:       tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		bytesRead:    bytesRead,
		bytesWritten: bytesWritten,
		errors:       errs,
		ctx:          context.Background(),
	}, nil
}

// Decorated returns the instrumented node.
func (decorator *NodeInstrumentationDecorator) Decorated() NodeInterface {
	return decorator.decorated
}

// Simple proxy for non-instrumented getter
func (decorator *NodeInstrumentationDecorator) Name() string {
	return decorator.decorated.Name()
}

// Chain sets the next node of the decorated node. It does nothing if the decorated node cannot
// be chained: NewChain rejects such a decorator when it is not the last layer.
func (decorator *NodeInstrumentationDecorator) Chain(next NodeInterface) {
	if chainable, ok := decorator.decorated.(ChainableNodeInterface); ok {
		chainable.Chain(next)
	}
}

// Next returns the next node of the decorated node if any.
func (decorator *NodeInstrumentationDecorator) Next() NodeInterface {
	if chainable, ok := decorator.decorated.(ChainableNodeInterface); ok {
		return chainable.Next()
	}
	return nil
}

// Decorate and instrument the Init method of a node.
func (decorator *NodeInstrumentationDecorator) Init(ctx context.Context, dst Destination) error {
	// Keep context as parent for next spans
	decorator.ctx = ctx
	// Start span
	ctx, span := decorator.tracer.Start(ctx, spanInit,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrNodeName, decorator.decorated.Name()),
			attribute.String(attrUrl, dst.String()),
		))
	defer span.End()
	// Call decorated Init method
	err := decorator.decorated.Init(ctx, dst)
	decorator.countError(span, err)
	return handlePotentialError(err, span)
}

// Decorate and instrument the Read method of a node.
func (decorator *NodeInstrumentationDecorator) Read(out *Buffer, args *NodeArgs) error {
	// Start span
	_, span := decorator.tracer.Start(decorator.ctx, spanRead,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrNodeName, decorator.decorated.Name())))
	defer span.End()
	// Call decorated Read method and count read bytes
	before := out.Size()
	err := decorator.decorated.Read(out, args)
	n := out.Size() - before
	span.SetAttributes(attribute.Int(attrByteSize, n))
	decorator.bytesRead.Add(decorator.ctx, int64(n),
		metric.WithAttributes(attribute.String(attrNodeName, decorator.decorated.Name())))
	decorator.countError(span, err)
	return handlePotentialError(err, span)
}

// Decorate and instrument the Write method of a node.
func (decorator *NodeInstrumentationDecorator) Write(in *Buffer, out *Buffer) error {
	// Start span
	_, span := decorator.tracer.Start(decorator.ctx, spanWrite,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrNodeName, decorator.decorated.Name())))
	defer span.End()
	// Call decorated Write method and count consumed bytes
	before := in.Size()
	err := decorator.decorated.Write(in, out)
	n := before - in.Size()
	span.SetAttributes(attribute.Int(attrByteSize, n))
	decorator.bytesWritten.Add(decorator.ctx, int64(n),
		metric.WithAttributes(attribute.String(attrNodeName, decorator.decorated.Name())))
	decorator.countError(span, err)
	return handlePotentialError(err, span)
}

// Decorate and instrument the Close method of a node.
func (decorator *NodeInstrumentationDecorator) Close() {
	_, span := decorator.tracer.Start(decorator.ctx, spanClose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(attrNodeName, decorator.decorated.Name())))
	defer span.End()
	decorator.decorated.Close()
}

// Add node error attributes to the span and increment the error counter if err is not nil.
func (decorator *NodeInstrumentationDecorator) countError(span trace.Span, err error) {
	if err == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrNodeName, decorator.decorated.Name())}
	if nerr, ok := AsNodeError(err); ok {
		span.SetAttributes(
			attribute.Int(attrErrorCode, int(nerr.Code)),
			attribute.String(attrErrorNode, nodeName(nerr.Node)))
		attrs = append(attrs, attribute.Int(attrErrorCode, int(nerr.Code)))
	}
	decorator.errors.Add(decorator.ctx, 1, metric.WithAttributes(attrs...))
}
