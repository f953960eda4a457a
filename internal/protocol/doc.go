// Package protocol owns the error kinds and request/response header shared by
// every wire codec.
//
// Ownership boundary:
// - error kinds (format, validation, truncation, struct schema, remote rejection)
// - 8-byte request/response header and message type table
// - subpackages: wire cursor primitives, stream framing, identity,
//   transaction and struct layout codecs
package protocol
