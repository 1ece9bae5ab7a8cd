// Package capture evaluates extraction rules.
//
// A rule reads a value out of one of several sources (the response of the
// case it is attached to, the main case's response, the request payload,
// the cache, or setup SQL data), optionally coerces it, then stores it in the
// chain's cache and/or writes it into a location of the dependent case.
//
// Paths are JSONPath-like ("$.data.items[0].id") and are resolved with gjson.
package capture
