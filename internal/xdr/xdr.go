// Package xdr provides generic XDR (External Data Representation) encoding and
// decoding utilities per RFC 4506.
//
// XDR is the standard data serialization format used by Sun RPC protocols
// including NFS. This package provides protocol-agnostic utilities shared by
// the RPC and NFS layer decoders.
//
// Key characteristics of XDR:
//   - Big-endian byte order for all multi-byte integers
//   - 4-byte alignment for all data types
//   - Variable-length data is preceded by a 4-byte length
//   - Strings and opaque data are padded to 4-byte boundaries
//
// This package contains only generic utilities with no dependencies on
// decoder-specific packages (no logger, trace, or protocol types).
//
// Reference: RFC 4506 - XDR: External Data Representation Standard
// https://tools.ietf.org/html/rfc4506
package xdr

import (
	"bytes"
	"io"
)

// ============================================================================
// XDR Codec Interfaces
// ============================================================================

// Encoder is implemented by types that can encode themselves to XDR format.
// Decoded protocol types keep their Encode methods so tests can build
// wire-exact fixtures without a second serializer.
type Encoder interface {
	Encode(buf *bytes.Buffer) error
}

// Decoder is implemented by types that can decode themselves from XDR format.
type Decoder interface {
	Decode(r io.Reader) error
}

// Pad returns the number of padding bytes that follow a variable-length
// item of the given length on the wire (0-3 bytes to a 4-byte boundary).
func Pad(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}
