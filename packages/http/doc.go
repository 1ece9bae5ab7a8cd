// Package http sends case requests over resty.
//
// It covers:
//   - JSON, form, query-string and multipart payloads
//   - Configurable timeouts, redirects, proxy and TLS verification
//   - Optional request pacing with a token bucket
//   - Single-attempt delivery; transport failures surface as connection errors
package http
