// Package telemetry wires OpenTelemetry tracing and the meter instruments
// recorded around drawing evaluation.
//
// SetupProvider installs the process-wide tracer provider backed by an OTLP
// gRPC exporter. The Record helpers lazily create their instruments on the
// global meter provider so tests can swap in a manual reader.
package telemetry
