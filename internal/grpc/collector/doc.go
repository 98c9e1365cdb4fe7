// Package collector implements a development OTLP trace receiver.
//
// It accepts OTLP/gRPC ExportTraceServiceRequest calls, logs one line per
// span and keeps the most recent spans in memory. It stands in for a real
// collector on a workstation and in end-to-end export tests.
//
// Example Usage:
//
//	c := collector.New(logger, collector.WithMetrics(metrics))
//	l, _ := net.Listen("tcp", ":4317")
//	go c.Serve(l)
//	defer c.Stop()
package collector
