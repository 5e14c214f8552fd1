package xdr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ============================================================================
// XDR Decoding Helpers - Wire Format → Go Types
// ============================================================================

// MaxOpaqueLength bounds variable-length opaque fields. Trace files come from
// real captures but may be truncated or corrupt; a bogus length field must not
// translate into a multi-gigabyte allocation. NFS opaque fields (filehandles,
// stateids, owner strings, layout bodies) are far below this limit.
const MaxOpaqueLength = 1024 * 1024 // 1 MB

// DecodeUint32 decodes a 32-bit unsigned integer from XDR format.
//
// Per RFC 4506 Section 4.1 (Integer):
// Unsigned 32-bit integers are encoded in big-endian byte order.
func DecodeUint32(reader io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return v, nil
}

// DecodeUint64 decodes a 64-bit unsigned integer from XDR format.
//
// Per RFC 4506 Section 4.5 (Hyper Integer):
// Unsigned 64-bit integers are encoded in big-endian byte order.
func DecodeUint64(reader io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return v, nil
}

// DecodeInt64 decodes a 64-bit signed integer from XDR format.
func DecodeInt64(reader io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(reader, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read int64: %w", err)
	}
	return v, nil
}

// DecodeBool decodes an XDR boolean value.
//
// Per RFC 4506 Section 4.4 (Boolean):
// Booleans are encoded as uint32 where 0 = false, any non-zero = true.
func DecodeBool(reader io.Reader) (bool, error) {
	v, err := DecodeUint32(reader)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// DecodeOpaque decodes XDR variable-length opaque data.
//
// Per RFC 4506 Section 4.10 (Variable-Length Opaque Data):
// Format: [length:uint32][data:length bytes][padding:0-3 bytes]
// Padding aligns the next item to a 4-byte boundary.
func DecodeOpaque(reader io.Reader) ([]byte, error) {
	return DecodeOpaqueMax(reader, MaxOpaqueLength)
}

// DecodeOpaqueMax decodes XDR variable-length opaque data with a caller
// supplied length bound. A declared length above the bound is a decode error
// for this field, which the layer decoders surface as a Malformed layer.
func DecodeOpaqueMax(reader io.Reader, maxLength uint32) ([]byte, error) {
	length, err := DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	if length > maxLength {
		return nil, fmt.Errorf("opaque length %d exceeds maximum %d", length, maxLength)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	// XDR padding is at most 3 bytes, skip it with a tiny stack buffer.
	if padding := Pad(length); padding > 0 {
		var padBuf [3]byte
		if _, err := io.ReadFull(reader, padBuf[:padding]); err != nil {
			return nil, fmt.Errorf("skip padding: %w", err)
		}
	}

	return data, nil
}

// DecodeFixedOpaque fills dst with XDR fixed-length opaque data, consuming
// the trailing alignment padding. The fixed size is len(dst), so array-backed
// types decode in place with dst[:].
//
// Per RFC 4506 Section 4.9 (Fixed-Length Opaque Data):
// Format: [data:size bytes][padding:0-3 bytes]
func DecodeFixedOpaque(reader io.Reader, dst []byte) error {
	if _, err := io.ReadFull(reader, dst); err != nil {
		return fmt.Errorf("read fixed opaque: %w", err)
	}
	if padding := Pad(uint32(len(dst))); padding > 0 {
		var padBuf [3]byte
		if _, err := io.ReadFull(reader, padBuf[:padding]); err != nil {
			return fmt.Errorf("skip padding: %w", err)
		}
	}
	return nil
}

// DecodeString decodes XDR variable-length string.
//
// Per RFC 4506 Section 4.11 (String):
// Strings use the same encoding as opaque data but are interpreted as UTF-8.
func DecodeString(reader io.Reader) (string, error) {
	data, err := DecodeOpaque(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUint32Array decodes an XDR variable-length array of uint32 values,
// bounded by maxCount entries.
//
// Per RFC 4506 Section 4.13 (Variable-Length Array):
// Format: [count:uint32][element 0]...[element count-1]
func DecodeUint32Array(reader io.Reader, maxCount uint32) ([]uint32, error) {
	count, err := DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read array count: %w", err)
	}
	if count > maxCount {
		return nil, fmt.Errorf("array count %d exceeds maximum %d", count, maxCount)
	}
	out := make([]uint32, count)
	for i := range out {
		if out[i], err = DecodeUint32(reader); err != nil {
			return nil, fmt.Errorf("read array element %d: %w", i, err)
		}
	}
	return out, nil
}
