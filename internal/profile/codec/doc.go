// Package codec converts profiles between their in-memory form and the
// three serialized forms the backends store:
//
//   - a YAML text tree, used by the file backend
//   - a flat typed column row, used by the relational backends
//   - compact delimited strings for list-like sub-data (status effects,
//     inventory regions) stored in single relational columns
//
// The codec is pure and does no I/O. Decoding is forward-compatible: a
// missing numeric field falls back to its default, a malformed field falls
// back to its default with a logged warning, and only an unparseable
// container is reported as an error.
package codec
