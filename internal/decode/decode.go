// Package decode turns raw capture frames into packet records by walking
// the protocol chain: Ethernet, IPv4 (with datagram reassembly), TCP (with
// stream reassembly), ONC RPC (with record-marking defragmentation and XID
// matching), and NFSv4 COMPOUND bodies.
//
// A Decoder holds all cross-record state for one trace walk: IP fragment
// buffers, per-flow TCP streams, and the pending-call table. Decoding stops
// at the first layer it cannot produce and records why in the record's Stop
// marker; a single undecodable frame never aborts the walk.
package decode

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nfstrace/nfstrace/internal/decode/rpc"
	"github.com/nfstrace/nfstrace/internal/logger"
	"github.com/nfstrace/nfstrace/pkg/metrics"
	"github.com/nfstrace/nfstrace/pkg/packet"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

// ============================================================================
// Configuration
// ============================================================================

// Defaults for Config fields left zero.
const (
	DefaultMaxFlowBuffer = 4 << 20
	DefaultFragmentTTL   = 30 * time.Second
	DefaultMaxFragments  = 64
	DefaultMaxFragSets   = 1024
)

// DefaultRPCPorts are the TCP ports assumed to carry ONC RPC: nfs and
// sunrpc/rpcbind. Flows on other ports are sniffed: if their first complete
// record-marked message parses as RPC, the flow is decoded as RPC.
var DefaultRPCPorts = []uint16{2049, 111}

// Config bounds the decoder's cross-record state.
type Config struct {
	// RPCPorts lists TCP ports always treated as RPC endpoints.
	RPCPorts []uint16

	// MaxFlowBuffer caps the bytes buffered per TCP flow direction for
	// out-of-order segments and partial messages. A flow that exceeds it
	// has its reassembly state discarded.
	MaxFlowBuffer int

	// FragmentTTL is how long an incomplete IP datagram's fragments are
	// kept before being dropped.
	FragmentTTL time.Duration

	// MaxFragments caps the fragments of a single datagram.
	MaxFragments int

	// Metrics receives pipeline counters. Nil disables collection.
	Metrics metrics.DecodeMetrics
}

func (c Config) withDefaults() Config {
	if len(c.RPCPorts) == 0 {
		c.RPCPorts = DefaultRPCPorts
	}
	if c.MaxFlowBuffer <= 0 {
		c.MaxFlowBuffer = DefaultMaxFlowBuffer
	}
	if c.FragmentTTL <= 0 {
		c.FragmentTTL = DefaultFragmentTTL
	}
	if c.MaxFragments <= 0 {
		c.MaxFragments = DefaultMaxFragments
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NopDecode()
	}
	return c
}

// ============================================================================
// Decoder
// ============================================================================

// Decoder decodes the frames of one trace in capture order. It is not safe
// for concurrent use; run one Decoder per walk.
type Decoder struct {
	cfg   Config
	frags *ttlcache.Cache[fragKey, *fragBuffer]
	flows map[flowKey]*flowState
	calls *rpc.PendingTable
}

// NewDecoder returns a Decoder with the given bounds. Call Close when the
// walk ends to release fragment buffers.
func NewDecoder(cfg Config) *Decoder {
	cfg = cfg.withDefaults()
	frags := ttlcache.New[fragKey, *fragBuffer](
		ttlcache.WithTTL[fragKey, *fragBuffer](cfg.FragmentTTL),
		ttlcache.WithCapacity[fragKey, *fragBuffer](DefaultMaxFragSets),
	)
	go frags.Start()
	return &Decoder{
		cfg:   cfg,
		frags: frags,
		flows: make(map[flowKey]*flowState),
		calls: rpc.NewPendingTable(),
	}
}

// Close releases the decoder's buffers.
func (d *Decoder) Close() {
	d.frags.Stop()
	d.frags.DeleteAll()
	d.flows = make(map[flowKey]*flowState)
}

// UnansweredCalls returns the calls still waiting for a reply, in call
// order. Useful once the trace is exhausted: each entry is a request the
// server never answered within the capture.
func (d *Decoder) UnansweredCalls() []*rpc.PendingCall {
	return d.calls.Unanswered()
}

// Decode turns one raw frame into a packet record. It never fails: frames
// that cannot be decoded come back with the Stop marker set.
func (d *Decoder) Decode(raw *trace.RawRecord) *packet.Record {
	rec := &packet.Record{
		Frame:   raw.Index,
		Pos:     raw.Pos,
		Time:    raw.Time,
		CapLen:  raw.CapLen,
		OrigLen: raw.OrigLen,
	}

	d.walkLayers(rec, raw.Data)

	if !rec.Stop.Ok() {
		logger.Debug("decode stopped",
			logger.KeyFrame, rec.Frame,
			logger.KeyLayer, rec.Stop.Layer,
			logger.KeyReason, rec.Stop.Code.String(),
		)
	}
	d.cfg.Metrics.RecordFrame(rec.Stop.Layer)
	if rec.Stop.Code == packet.StopMalformed {
		d.cfg.Metrics.RecordMalformed(rec.Stop.Layer)
	}
	d.cfg.Metrics.ObserveState(len(d.flows), d.frags.Len(), d.calls.Len())
	return rec
}

func (d *Decoder) walkLayers(rec *packet.Record, data []byte) {
	payload, ok := d.decodeEthernet(rec, data)
	if !ok {
		return
	}
	payload, ok = d.decodeIPv4(rec, payload)
	if !ok {
		return
	}
	payload, ok = d.decodeTCP(rec, payload)
	if !ok {
		return
	}
	d.decodeRPC(rec, payload)
}

func stop(rec *packet.Record, code packet.StopCode, layer, detail string) (b []byte, ok bool) {
	rec.Stop = packet.Stop{Code: code, Layer: layer, Detail: detail}
	return nil, false
}
