/*
Package obsmetrics provides Prometheus instrumentation for the token,
group, storage, circuit breaker and identity agent components.

Unlike the package it's descended from, Recorder is not a set of
package-level globals registered via prometheus.MustRegister in an
init func — it's a value callers construct once and thread through the
services they instrument, so tests can build a fresh Recorder against
a throwaway registry instead of sharing global state.
*/
package obsmetrics
