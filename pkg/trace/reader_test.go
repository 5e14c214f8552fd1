package trace

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

type pcapWriter struct {
	buf  bytes.Buffer
	bo   binary.ByteOrder
	nano bool
}

func newPcapWriter(bo binary.ByteOrder, nano bool, snaplen uint32) *pcapWriter {
	w := &pcapWriter{bo: bo, nano: nano}
	magic := uint32(magicMicro)
	if nano {
		magic = magicNano
	}
	_ = binary.Write(&w.buf, bo, magic)
	_ = binary.Write(&w.buf, bo, uint16(2)) // version major
	_ = binary.Write(&w.buf, bo, uint16(4)) // version minor
	_ = binary.Write(&w.buf, bo, int32(0))  // thiszone
	_ = binary.Write(&w.buf, bo, uint32(0)) // sigfigs
	_ = binary.Write(&w.buf, bo, snaplen)   // snaplen
	_ = binary.Write(&w.buf, bo, uint32(1)) // linktype: ethernet
	return w
}

func (w *pcapWriter) record(sec, frac uint32, data []byte, origLen uint32) {
	_ = binary.Write(&w.buf, w.bo, sec)
	_ = binary.Write(&w.buf, w.bo, frac)
	_ = binary.Write(&w.buf, w.bo, uint32(len(data)))
	_ = binary.Write(&w.buf, w.bo, origLen)
	w.buf.Write(data)
}

func (w *pcapWriter) writeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.cap")
	require.NoError(t, os.WriteFile(path, w.buf.Bytes(), 0644))
	return path
}

// ============================================================================
// Global Header Tests
// ============================================================================

func TestOpen(t *testing.T) {
	t.Run("ParsesLittleEndianMicrosecondHeader", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		hdr := r.Header()
		assert.Equal(t, binary.ByteOrder(binary.LittleEndian), hdr.ByteOrder)
		assert.False(t, hdr.NanoRes)
		assert.Equal(t, uint16(2), hdr.VersionMajor)
		assert.Equal(t, uint32(65535), hdr.SnapLen)
		assert.Equal(t, uint32(LinkTypeEthernet), hdr.LinkType)
	})

	t.Run("ParsesBigEndianNanosecondHeader", func(t *testing.T) {
		w := newPcapWriter(binary.BigEndian, true, 262144)
		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		hdr := r.Header()
		assert.Equal(t, binary.ByteOrder(binary.BigEndian), hdr.ByteOrder)
		assert.True(t, hdr.NanoRes)
	})

	t.Run("RejectsUnknownMagic", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bogus.cap")
		bogus := append([]byte{0xde, 0xad, 0xbe, 0xef}, make([]byte, 20)...)
		require.NoError(t, os.WriteFile(path, bogus, 0644))

		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
		assert.Contains(t, err.Error(), "magic")
	})

	t.Run("RejectsShortHeader", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.cap")
		require.NoError(t, os.WriteFile(path, []byte{0xa1, 0xb2}, 0644))

		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
	})

	t.Run("FailsOnMissingFile", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.cap"))
		require.Error(t, err)
		assert.False(t, IsFormatError(err))
	})
}

// ============================================================================
// Record Iteration Tests
// ============================================================================

func TestNext(t *testing.T) {
	t.Run("YieldsRecordsInOrder", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		w.record(100, 500, []byte{1, 2, 3, 4}, 4)
		w.record(100, 900, []byte{5, 6}, 2)
		w.record(101, 1, bytes.Repeat([]byte{7}, 60), 60)

		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		var lastPos Position = -1
		var lastTime time.Time
		for i := 1; i <= 3; i++ {
			rec, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, i, rec.Index)
			assert.True(t, rec.Pos.After(lastPos), "positions must strictly increase")
			assert.False(t, rec.Time.Before(lastTime), "timestamps must not decrease")
			lastPos = rec.Pos
			lastTime = rec.Time
		}

		_, err = r.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("MicrosecondTimestampResolution", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		w.record(1349747491, 905320, []byte{0}, 1)

		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1349747491, 905320000).UTC(), rec.Time.UTC())
	})

	t.Run("ReportsSnapshotTruncation", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		w.record(1, 0, []byte{1, 2, 3}, 1500)

		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		rec, err := r.Next()
		require.NoError(t, err)
		assert.True(t, rec.Truncated())
		assert.Equal(t, uint32(3), rec.CapLen)
		assert.Equal(t, uint32(1500), rec.OrigLen)
	})

	t.Run("RejectsRecordLongerThanSnaplen", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 64)
		w.record(1, 0, bytes.Repeat([]byte{0}, 65), 65)

		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Next()
		require.Error(t, err)
		assert.True(t, IsFormatError(err))
	})

	t.Run("NextAfterCloseFails", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		require.NoError(t, r.Close())

		_, err = r.Next()
		assert.Equal(t, ErrClosed, err)
	})
}

// ============================================================================
// Resumption Tests
// ============================================================================

func TestSeek(t *testing.T) {
	t.Run("ResumeYieldsExactSuffix", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		for i := 0; i < 5; i++ {
			w.record(uint32(i), 0, []byte{byte(i), byte(i)}, 2)
		}

		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		// Collect the full sequence of positions and payloads.
		var positions []Position
		var payloads [][]byte
		for {
			rec, err := r.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			positions = append(positions, rec.Pos)
			payloads = append(payloads, rec.Data)
		}
		require.Len(t, positions, 5)

		// Resuming at the third record's position replays records 3..5
		// exactly: nothing skipped, nothing duplicated.
		require.NoError(t, r.Seek(positions[2]))
		for i := 2; i < 5; i++ {
			rec, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, positions[i], rec.Pos)
			assert.Equal(t, payloads[i], rec.Data)
		}
		_, err = r.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("SeekToStartRewinds", func(t *testing.T) {
		w := newPcapWriter(binary.BigEndian, false, 65535)
		w.record(9, 0, []byte{0xAA}, 1)

		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		first, err := r.Next()
		require.NoError(t, err)

		require.NoError(t, r.Seek(Start))
		again, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, first.Pos, again.Pos)
		assert.Equal(t, first.Data, again.Data)
	})
}

// ============================================================================
// Live (Growing) Trace Tests
// ============================================================================

func TestGrowingTrace(t *testing.T) {
	t.Run("PartialRecordReportsAwaitingData", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		w.record(1, 0, []byte{1, 2, 3, 4}, 4)
		full := w.buf.Bytes()

		// Cut the trace in the middle of the record payload.
		path := filepath.Join(t.TempDir(), "grow.cap")
		require.NoError(t, os.WriteFile(path, full[:len(full)-2], 0644))

		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Next()
		assert.ErrorIs(t, err, ErrAwaitingData)

		// Completing the record makes the same Next call succeed: the
		// cursor did not advance on ErrAwaitingData.
		require.NoError(t, os.WriteFile(path, full, 0644))
		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, rec.Data)
	})

	t.Run("AwaitReturnsOnGrowth", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		path := w.writeFile(t)

		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Next()
		require.Equal(t, io.EOF, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
			var rec bytes.Buffer
			_ = binary.Write(&rec, binary.LittleEndian, uint32(2))
			_ = binary.Write(&rec, binary.LittleEndian, uint32(0))
			_ = binary.Write(&rec, binary.LittleEndian, uint32(1))
			_ = binary.Write(&rec, binary.LittleEndian, uint32(1))
			rec.WriteByte(0x42)
			_, _ = f.Write(rec.Bytes())
			_ = f.Close()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, r.Await(ctx, 100*time.Millisecond))

		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x42}, rec.Data)
	})

	t.Run("AwaitHonorsCancellation", func(t *testing.T) {
		w := newPcapWriter(binary.LittleEndian, false, 65535)
		r, err := Open(w.writeFile(t))
		require.NoError(t, err)
		defer r.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = r.Await(ctx, 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
