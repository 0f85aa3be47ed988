// Package metrics records pipeline observability data.
//
// Components depend on the Recorder interface and default to NoopRecorder, so
// no nil checks are needed at call sites. The daemon swaps in a
// PrometheusRecorder when metrics.listen is configured and serves the
// registry through HTTPHandler.
package metrics
