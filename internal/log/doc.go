// Package log provides slog loggers that never write browsing secrets.
//
// SecureHandler wraps any slog.Handler and masks:
//   - HTTP credential headers (Cookie, Set-Cookie, Authorization, Proxy-Authorization)
//   - attributes whose key names a secret (password, token, credential)
//   - values shaped like secrets (JWTs, bearer and basic credentials, long keys)
//
// URL-valued attributes are kept but rewritten: userinfo is dropped and the
// values of login-style query parameters are masked.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("page loaded", "url", "https://user:pw@example.com/?token=x")
//	// url=https://example.com/?token=%2A%2A%2AREDACTED%2A%2A%2A
package log
