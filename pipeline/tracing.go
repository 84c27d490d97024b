package pipeline

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Constants used for instrumentation purpose
const (
	// Instrumentation library package name
	pkgName = "gowsnode.pipeline"
	// Instrumentation library package version
	pkgVersion = "0.0.0"
	// Namespace used by the spans, attributes, events and metrics
	namespace = "pipeline.node"
	// Name of the span used to instrument Init method call
	spanInit = namespace + "." + "init"
	// Name of the span used to instrument Read method call
	spanRead = namespace + "." + "read"
	// Name of the span used to instrument Write method call
	spanWrite = namespace + "." + "write"
	// Name of the span used to instrument Close method call
	spanClose = namespace + "." + "close"

	// Name of the attribute used to provide the node name
	attrNodeName = namespace + "." + "name"
	// Name of the attribute used to provide the destination
	attrUrl = "url.full"
	// Name of the attribute used to provide the node error code
	attrErrorCode = namespace + "." + "error.code"
	// Name of the attribute used to provide the name of the node which failed
	attrErrorNode = namespace + "." + "error.node"
	// Name of the attribute used to provide the number of bytes transferred
	attrByteSize = namespace + "." + "bytes"

	// Name of the counter of bytes read
	metricBytesRead = namespace + "." + "bytes_read"
	// Name of the counter of bytes written
	metricBytesWritten = namespace + "." + "bytes_written"
	// Name of the counter of failed calls
	metricErrors = namespace + "." + "errors"
)

// # Description
//
// If the error is not nil, the function records the input error in the provided span and set the
// span status with an error code and description. In the other case, the span status is set with
// a Ok code. The function returns the provided error in all cases.
func handlePotentialError(err error, span trace.Span) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, codes.Error.String())
		return err
	}
	span.SetStatus(codes.Ok, codes.Ok.String())
	return nil
}
