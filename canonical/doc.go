// Package canonical provides a tagged-variant representation of JSON values
// with ordered objects, and a deterministic compact serializer for it.
//
// Serialization of the same Value always yields the same bytes: object members
// are emitted in insertion order, numbers in their minimal textual form and
// strings with a fixed escaping scheme. This makes the output suitable as
// the signed content of a JWS.
//
// The package also parses JSON back into Values preserving member order,
// and converts native Go values (maps, slices, structs) into Values.
package canonical
