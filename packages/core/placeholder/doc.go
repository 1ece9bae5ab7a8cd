// Package placeholder resolves the $cache{name} and ${{function()}} markers
// data files use to refer to values produced earlier in a dependency chain
// or supplied by the environment.
package placeholder
