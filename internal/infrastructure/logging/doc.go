// Package logging provides structured logging using uber/zap.
//
// Three line formats are available:
//   - logfmt: the default single-line key=value format,
//     time="<ISO8601>" service=<name> level=<LEVEL> <message> <fields> trace_id=<id>
//   - json: production JSON output for machine parsing
//   - console: colored development output for humans
//
// Loggers are correlated with traces through WithContext, which captures the
// trace id of the span active in the given context. When no span is active
// the trace_id field is rendered empty; that is the normal case for logs
// emitted outside a request.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	logger.WithContext(ctx).Sugar().Errorf("method=%s path=%q status=%d", "GET", "/", 200)
package logging
