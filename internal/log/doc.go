// Package log provides slog loggers that never print credentials.
//
// The crawler handles three kinds of secrets: the API key of the language
// model, the cookies and extra headers of site configs, and tokens that
// leak into error messages and URLs returned by HTTP clients. SecureHandler
// wraps any slog.Handler and masks them:
//   - attributes whose key names a secret (cookie, authorization, api_key ...)
//   - string values that look like a key or a bearer token
//   - keys embedded in longer strings, such as "?key=..." in a request URL
//
// Masking also applies in verbose mode.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Warn("model call failed", "error", err) // "?key=***REDACTED***"
package log
