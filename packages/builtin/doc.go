// Package builtin provides the functions data files call through ${{name(args)}}
// placeholders.
//
// Available functions:
//   - now(), timestamp(), timestamp_ms(), date(layout, dayOffset)
//   - uuid(), random_int(min, max), random_string(n), random_email()
//   - base64(s), base64_decode(s), md5(s), sha256(s), url_encode(s), url_decode(s)
//   - env(name, default)
//
// Environment values such as host() and app_host() are registered by the
// caller with RegisterValue.
package builtin
