// Package assertions evaluates a case's assertion spec against one exchange.
//
// Units cover the status code, a response-time bound, body paths, headers and
// SQL query results. Every unit runs even after an earlier one fails, and all
// operators go through one dispatch table.
package assertions
