package xdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// XDR Encoding Helpers - Go Types → Wire Format
// ============================================================================
//
// The decoder never writes protocol bytes onto a network, but the encode
// helpers are load-bearing for tests: operation fixtures are produced with
// the same types the decoder parses, so a round-trip mismatch is caught
// immediately instead of hiding inside hand-written hex dumps.

// WriteUint32 encodes a 32-bit unsigned integer in big-endian XDR format.
func WriteUint32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// WriteUint64 encodes a 64-bit unsigned integer in big-endian XDR format.
func WriteUint64(buf *bytes.Buffer, v uint64) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// WriteInt64 encodes a 64-bit signed integer in big-endian XDR format.
func WriteInt64(buf *bytes.Buffer, v int64) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// WriteBool encodes an XDR boolean as uint32 (0 = false, 1 = true).
func WriteBool(buf *bytes.Buffer, v bool) error {
	var u uint32
	if v {
		u = 1
	}
	return WriteUint32(buf, u)
}

// WriteOpaque encodes opaque data in XDR format: length + data + padding.
//
// Per RFC 4506 Section 4.10 (Variable-Length Opaque Data):
// Format: [length:uint32][data:bytes][padding:0-3 zero bytes]
func WriteOpaque(buf *bytes.Buffer, data []byte) error {
	length := uint32(len(data))
	if err := WriteUint32(buf, length); err != nil {
		return fmt.Errorf("write opaque length: %w", err)
	}
	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write opaque data: %w", err)
	}
	return WritePadding(buf, length)
}

// WriteFixedOpaque encodes fixed-length opaque data: data + padding, no
// length prefix.
func WriteFixedOpaque(buf *bytes.Buffer, data []byte) error {
	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write fixed opaque: %w", err)
	}
	return WritePadding(buf, uint32(len(data)))
}

// WriteString encodes a string in XDR format: length + data + padding.
//
// Per RFC 4506 Section 4.11 (String).
func WriteString(buf *bytes.Buffer, s string) error {
	return WriteOpaque(buf, []byte(s))
}

// WriteUint32Array encodes an XDR variable-length array of uint32 values.
func WriteUint32Array(buf *bytes.Buffer, vals []uint32) error {
	if err := WriteUint32(buf, uint32(len(vals))); err != nil {
		return fmt.Errorf("write array count: %w", err)
	}
	for i, v := range vals {
		if err := WriteUint32(buf, v); err != nil {
			return fmt.Errorf("write array element %d: %w", i, err)
		}
	}
	return nil
}

// WritePadding writes zero bytes to align to a 4-byte boundary.
func WritePadding(buf *bytes.Buffer, dataLen uint32) error {
	for i := uint32(0); i < Pad(dataLen); i++ {
		if err := buf.WriteByte(0); err != nil {
			return fmt.Errorf("write padding: %w", err)
		}
	}
	return nil
}
