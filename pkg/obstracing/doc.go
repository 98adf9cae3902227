/*
Package obstracing provides OpenTelemetry span instrumentation. Its one
caller is vaultkv, whose ReadSecret and WriteSecret calls each run in a
span; the token, group and storage layers open none. It mirrors the teacher's tracing
helper but built as a constructed value (Provider) instead of a package
that calls otel.SetTracerProvider as a side effect of construction.
*/
package obstracing
