// Package cache provides the chain-scoped key/value store that carries
// extracted response values from prerequisite cases into dependent ones.
package cache
