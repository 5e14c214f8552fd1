package xdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOpaque(t *testing.T) {
	t.Run("RoundTripsWithPadding", func(t *testing.T) {
		for _, data := range [][]byte{
			{},
			{0x01},
			{0x01, 0x02, 0x03},
			{0x01, 0x02, 0x03, 0x04},
			bytes.Repeat([]byte{0xAB}, 129),
		} {
			buf := new(bytes.Buffer)
			require.NoError(t, WriteOpaque(buf, data))
			assert.Zero(t, buf.Len()%4, "encoded opaque must be 4-byte aligned")

			got, err := DecodeOpaque(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, data, got)
		}
	})

	t.Run("RejectsLengthAboveBound", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteUint32(buf, 512))
		buf.Write(bytes.Repeat([]byte{0}, 512))

		_, err := DecodeOpaqueMax(bytes.NewReader(buf.Bytes()), 128)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})

	t.Run("FailsOnTruncatedData", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteUint32(buf, 16))
		buf.Write([]byte{1, 2, 3}) // 13 bytes short

		_, err := DecodeOpaque(bytes.NewReader(buf.Bytes()))
		require.Error(t, err)
	})
}

func TestDecodeFixedOpaque(t *testing.T) {
	t.Run("ConsumesAlignmentPadding", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteFixedOpaque(buf, []byte{0xDE, 0xAD, 0xBE}))
		require.NoError(t, WriteUint32(buf, 42))

		r := bytes.NewReader(buf.Bytes())
		var data [3]byte
		require.NoError(t, DecodeFixedOpaque(r, data[:]))
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE}, data[:])

		// The next field must start on the 4-byte boundary.
		next, err := DecodeUint32(r)
		require.NoError(t, err)
		assert.Equal(t, uint32(42), next)
	})

	t.Run("ShortData", func(t *testing.T) {
		var data [8]byte
		err := DecodeFixedOpaque(bytes.NewReader([]byte{1, 2, 3}), data[:])
		require.Error(t, err)
	})
}

func TestDecodeString(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteString(buf, "nfs-client-01"))

	s, err := DecodeString(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "nfs-client-01", s)
}

func TestDecodeUint32Array(t *testing.T) {
	t.Run("RoundTrips", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteUint32Array(buf, []uint32{4, 24, 27}))

		got, err := DecodeUint32Array(bytes.NewReader(buf.Bytes()), 16)
		require.NoError(t, err)
		assert.Equal(t, []uint32{4, 24, 27}, got)
	})

	t.Run("RejectsCountAboveBound", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteUint32Array(buf, make([]uint32, 32)))

		_, err := DecodeUint32Array(bytes.NewReader(buf.Bytes()), 16)
		require.Error(t, err)
	})
}

func TestPad(t *testing.T) {
	assert.Equal(t, uint32(0), Pad(0))
	assert.Equal(t, uint32(3), Pad(1))
	assert.Equal(t, uint32(2), Pad(2))
	assert.Equal(t, uint32(1), Pad(3))
	assert.Equal(t, uint32(0), Pad(4))
	assert.Equal(t, uint32(3), Pad(5))
}
