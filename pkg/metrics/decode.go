package metrics

// DecodeMetrics provides observability for the packet decoding pipeline.
//
// Implementations can count decoded records, decoding stops, reassembly
// failures, and RPC traffic by direction. This interface is optional -
// pass nil to disable metrics collection with zero overhead.
type DecodeMetrics interface {
	// RecordFrame records one processed capture record. stopLayer is the
	// layer at which decoding stopped, or "" for fully decoded records.
	RecordFrame(stopLayer string)

	// RecordMalformed records a record whose bytes violated the format of
	// the named layer.
	RecordMalformed(layer string)

	// RecordReassemblyFailure records a discarded IP fragment set or TCP
	// flow buffer.
	RecordReassemblyFailure(layer string)

	// RecordRPCMessage records one decoded RPC message.
	// direction is "call" or "reply".
	RecordRPCMessage(direction string)

	// RecordUnmatchedReply records a reply whose transaction ID matched no
	// outstanding call on its connection.
	RecordUnmatchedReply()

	// RecordCompoundOp records one decoded NFSv4 operation by name.
	RecordCompoundOp(op string)

	// ObserveState reports the decoder's cross-record state after a record:
	// live TCP flows, incomplete IP fragment sets, and calls awaiting a
	// reply. Useful for watching a live capture fill reassembly buffers.
	ObserveState(flows, fragments, pendingCalls int)
}

type nopDecodeMetrics struct{}

func (nopDecodeMetrics) RecordFrame(string)             {}
func (nopDecodeMetrics) RecordMalformed(string)         {}
func (nopDecodeMetrics) RecordReassemblyFailure(string) {}
func (nopDecodeMetrics) RecordRPCMessage(string)        {}
func (nopDecodeMetrics) RecordUnmatchedReply()          {}
func (nopDecodeMetrics) RecordCompoundOp(string)        {}
func (nopDecodeMetrics) ObserveState(int, int, int)     {}

// NopDecode returns a DecodeMetrics that discards everything. Used when no
// collector is configured.
func NopDecode() DecodeMetrics {
	return nopDecodeMetrics{}
}
