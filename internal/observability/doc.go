// Package observability provides structured logging and tracing for the
// question answering pipeline.
//
// Logging is zap based. Tracing is OpenTelemetry based and disabled by
// default; when disabled every span is a no-op.
package observability
