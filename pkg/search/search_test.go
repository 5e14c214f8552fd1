package search

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfstrace/nfstrace/internal/decode"
	"github.com/nfstrace/nfstrace/internal/decode/nfs"
	"github.com/nfstrace/nfstrace/internal/decode/rpc"
	"github.com/nfstrace/nfstrace/pkg/packet"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

// ============================================================================
// Fixture Trace
// ============================================================================

const (
	clientIP = "10.0.0.5"
	serverIP = "10.0.0.9"
)

func tcpFrame(src, dst string, sport, dport uint16, seq uint32, payload []byte) []byte {
	frame := make([]byte, 0, 54+len(payload))
	frame = append(frame, net.HardwareAddr{2, 0, 0, 0, 0, 2}...)
	frame = append(frame, net.HardwareAddr{2, 0, 0, 0, 0, 1}...)
	frame = append(frame, 0x08, 0x00)

	ip := make([]byte, 20)
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(40+len(payload)))
	ip[8] = 64
	ip[9] = 6
	copy(ip[12:16], net.ParseIP(src).To4())
	copy(ip[16:20], net.ParseIP(dst).To4())
	frame = append(frame, ip...)

	tcp := make([]byte, 20)
	binary.BigEndian.PutUint16(tcp[0:2], sport)
	binary.BigEndian.PutUint16(tcp[2:4], dport)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	tcp[12] = 5 << 4
	tcp[13] = byte(packet.FlagACK)
	binary.BigEndian.PutUint16(tcp[14:16], 0xffff)
	frame = append(frame, tcp...)

	return append(frame, payload...)
}

func compoundCall(t *testing.T, xid uint32, tag string, ops ...nfs.Op) []byte {
	t.Helper()
	var nbuf bytes.Buffer
	require.NoError(t, (&nfs.Message{Call: true, Tag: tag, Ops: ops}).EncodeCall(&nbuf))
	msg := &rpc.Message{
		XID:       xid,
		Program:   nfs.Program,
		Version:   4,
		Procedure: nfs.PROC_COMPOUND,
		Cred:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Payload:   nbuf.Bytes(),
	}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeCall(&buf))
	return rpc.Frame(buf.Bytes())
}

func compoundReply(t *testing.T, xid uint32, ops ...nfs.Op) []byte {
	t.Helper()
	var nbuf bytes.Buffer
	require.NoError(t, (&nfs.Message{Status: nfs.NFS4_OK, Ops: ops}).EncodeReply(&nbuf))
	msg := &rpc.Message{
		XID:       xid,
		Type:      rpc.TypeReply,
		ReplyStat: rpc.MsgAccepted,
		Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone},
		Payload:   nbuf.Bytes(),
	}
	var buf bytes.Buffer
	require.NoError(t, msg.EncodeReply(&buf))
	return rpc.Frame(buf.Bytes())
}

// fixtureTrace writes a four-frame capture: PUTROOTFH call and reply, then
// a GETFH call, then a WRITE call.
func fixtureTrace(t *testing.T) string {
	t.Helper()

	var clientSeq, serverSeq uint32 = 1, 1
	frames := make([][]byte, 0, 4)

	c1 := compoundCall(t, 0x10, "mount", nfs.Op{Code: nfs.OP_PUTROOTFH, Args: &nfs.PutRootFHArgs{}})
	frames = append(frames, tcpFrame(clientIP, serverIP, 40100, 2049, clientSeq, c1))
	clientSeq += uint32(len(c1))

	r1 := compoundReply(t, 0x10, nfs.Op{Code: nfs.OP_PUTROOTFH, Status: nfs.NFS4_OK, Res: &nfs.PutRootFHRes{}})
	frames = append(frames, tcpFrame(serverIP, clientIP, 2049, 40100, serverSeq, r1))
	serverSeq += uint32(len(r1))

	c2 := compoundCall(t, 0x11, "getfh", nfs.Op{Code: nfs.OP_GETFH, Args: &nfs.GetFHArgs{}})
	frames = append(frames, tcpFrame(clientIP, serverIP, 40100, 2049, clientSeq, c2))
	clientSeq += uint32(len(c2))

	c3 := compoundCall(t, 0x12, "write", nfs.Op{Code: nfs.OP_WRITE, Args: &nfs.WriteArgs{Data: []byte("payload")}})
	frames = append(frames, tcpFrame(clientIP, serverIP, 40100, 2049, clientSeq, c3))

	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, uint32(0xa1b2c3d4))
	_ = binary.Write(&buf, le, uint16(2))
	_ = binary.Write(&buf, le, uint16(4))
	_ = binary.Write(&buf, le, int32(0))
	_ = binary.Write(&buf, le, uint32(0))
	_ = binary.Write(&buf, le, uint32(65535))
	_ = binary.Write(&buf, le, uint32(1))
	for i, frame := range frames {
		_ = binary.Write(&buf, le, uint32(1000+i)) // seconds
		_ = binary.Write(&buf, le, uint32(0))
		_ = binary.Write(&buf, le, uint32(len(frame)))
		_ = binary.Write(&buf, le, uint32(len(frame)))
		buf.Write(frame)
	}

	path := filepath.Join(t.TempDir(), "fixture.cap")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// ============================================================================
// Iteration
// ============================================================================

func TestIteratorOrdering(t *testing.T) {
	it, err := Open(fixtureTrace(t), decode.Config{})
	require.NoError(t, err)
	defer it.Close()

	var positions []trace.Position
	err = it.Each(func(rec *packet.Record) bool {
		positions = append(positions, rec.Pos)
		return true
	})
	require.NoError(t, err)
	require.Len(t, positions, 4)
	for i := 1; i < len(positions); i++ {
		assert.True(t, positions[i-1].Before(positions[i]), "positions must strictly increase")
	}
}

func TestIteratorResume(t *testing.T) {
	path := fixtureTrace(t)

	it, err := Open(path, decode.Config{})
	require.NoError(t, err)
	var all []*packet.Record
	require.NoError(t, it.Each(func(rec *packet.Record) bool {
		all = append(all, rec)
		return true
	}))
	require.NoError(t, it.Close())
	require.Len(t, all, 4)

	// Resuming from the second record's position yields exactly the
	// remaining two, nothing duplicated, nothing skipped.
	resumed, err := Open(path, decode.Config{})
	require.NoError(t, err)
	defer resumed.Close()
	require.NoError(t, resumed.Resume(all[1].Pos))

	var tail []trace.Position
	require.NoError(t, resumed.Each(func(rec *packet.Record) bool {
		tail = append(tail, rec.Pos)
		return true
	}))
	require.Equal(t, []trace.Position{all[2].Pos, all[3].Pos}, tail)
}

// ============================================================================
// Find
// ============================================================================

func TestFind(t *testing.T) {
	it, err := Open(fixtureTrace(t), decode.Config{})
	require.NoError(t, err)
	defer it.Close()

	t.Run("FirstMatch", func(t *testing.T) {
		rec, err := it.Find(Op("GETFH"))
		require.NoError(t, err)
		require.NotNil(t, rec.NFS)
		assert.Equal(t, "getfh", rec.NFS.Tag)
	})

	t.Run("ContinuesForward", func(t *testing.T) {
		rec, err := it.Find(Op("WRITE"))
		require.NoError(t, err)
		assert.Equal(t, "write", rec.NFS.Tag)
	})

	t.Run("NotFoundAtEndOfTrace", func(t *testing.T) {
		_, err := it.Find(Op("LOCK"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFindAbsenceProof(t *testing.T) {
	it, err := Open(fixtureTrace(t), decode.Config{})
	require.NoError(t, err)
	defer it.Close()

	// "No LOCK was ever sent": search for the counter-example.
	_, err = it.Find(Op("LOCK"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByField(t *testing.T) {
	it, err := Open(fixtureTrace(t), decode.Config{})
	require.NoError(t, err)
	defer it.Close()

	rec, err := it.Find(And(
		FieldEquals("ip.src", serverIP),
		FieldEquals("rpc.type", uint32(rpc.TypeReply)),
	))
	require.NoError(t, err)
	require.NotNil(t, rec.RPC)
	assert.Equal(t, uint32(0x10), rec.RPC.XID)
}

func TestFindByXID(t *testing.T) {
	it, err := Open(fixtureTrace(t), decode.Config{})
	require.NoError(t, err)
	defer it.Close()

	call, err := it.Find(XID(0x10))
	require.NoError(t, err)
	assert.True(t, call.RPC.IsCall())

	reply, err := it.Find(XID(0x10))
	require.NoError(t, err)
	assert.False(t, reply.RPC.IsCall())
	assert.True(t, call.Pos.Before(reply.Pos))
}

// ============================================================================
// Predicates
// ============================================================================

func TestPredicateCombinators(t *testing.T) {
	yes := PredicateFunc(func(*packet.Record) bool { return true })
	no := PredicateFunc(func(*packet.Record) bool { return false })
	rec := &packet.Record{}

	assert.True(t, And().Match(rec))
	assert.True(t, And(yes, yes).Match(rec))
	assert.False(t, And(yes, no).Match(rec))
	assert.False(t, Or().Match(rec))
	assert.True(t, Or(no, yes).Match(rec))
	assert.False(t, Not(yes).Match(rec))
	assert.True(t, Not(no).Match(rec))
}

func TestFieldPredicates(t *testing.T) {
	rec := &packet.Record{
		TCP: &packet.TCP{SrcPort: 40100, DstPort: 2049},
	}

	assert.True(t, FieldEquals("tcp.dst_port", 2049).Match(rec))
	assert.True(t, FieldEquals("tcp.dst_port", uint16(2049)).Match(rec))
	assert.False(t, FieldEquals("tcp.dst_port", 111).Match(rec))
	assert.False(t, FieldEquals("ip.src", clientIP).Match(rec), "absent layer never matches")

	assert.True(t, FieldIn("tcp.dst_port", 111, 2049).Match(rec))
	assert.False(t, FieldIn("tcp.dst_port", 111, 20049).Match(rec))

	assert.True(t, FieldRange("tcp.src_port", 40000, 41000).Match(rec))
	assert.False(t, FieldRange("tcp.src_port", 0, 1024).Match(rec))

	assert.True(t, HasLayer("tcp").Match(rec))
	assert.False(t, HasLayer("nfs").Match(rec))
}

func TestDomainPredicates(t *testing.T) {
	rec := &packet.Record{
		RPC: &rpc.Message{XID: 7, Type: rpc.TypeReply, Unmatched: true},
	}
	assert.True(t, XID(7).Match(rec))
	assert.False(t, XID(8).Match(rec))
	assert.True(t, UnmatchedReply().Match(rec))

	stopped := &packet.Record{Stop: packet.Stop{Code: packet.StopTruncated, Layer: "tcp"}}
	assert.True(t, Stopped().Match(stopped))
	assert.False(t, Stopped().Match(rec))
}
