// Package policy enforces the request policy of every session.
//
// Engine.Attach installs up to three interceptors on a session, each at most
// once:
//
//   - blocklist: cancels requests whose host is on the configured ruleset.
//   - tracker-upgrade: redirects insecure requests to the secure scheme and
//     otherwise redirects to the URL without tracking parameters.
//   - header-sanitizer: removes Referer and DNT and sends one generic
//     User-Agent from every session.
//
// The rewrite decisions are pure functions of the request URL, so a request
// to http://example.com/?utm_source=x is first upgraded and only stripped on
// the follow-up request.
package policy
