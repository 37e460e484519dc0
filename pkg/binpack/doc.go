// Package binpack decodes the compact self-describing binary serialization
// used by archived snapshot payloads.
//
// The format is tag-driven: every value starts with a tag byte selecting the
// type and, for short strings, arrays and maps, carries the length in the
// tag's low bits. Longer values use 8/16/32-bit big-endian length prefixes.
// Decoding is recursive descent, single pass, no backtracking.
//
// The package also carries a minimal encoder, used by tests and by the
// staging store's integrity fixtures.
package binpack
