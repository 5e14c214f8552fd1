package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so decode logs can
// be filtered by frame, flow, or XID when chasing a misbehaving trace.
const (
	// ========================================================================
	// Trace & Record
	// ========================================================================
	KeyTrace    = "trace"     // Capture file path
	KeyFrame    = "frame"     // Frame (record) index within the trace, 1-based
	KeyPosition = "position"  // Byte offset of the record in the capture file
	KeyLinkType = "link_type" // pcap link-layer type from the global header
	KeySnapLen  = "snaplen"   // pcap snapshot length from the global header

	// ========================================================================
	// Network & Transport
	// ========================================================================
	KeyFlow    = "flow"     // Flow key: src:sport -> dst:dport
	KeySrc     = "src"      // Source IP address
	KeyDst     = "dst"      // Destination IP address
	KeySrcPort = "src_port" // TCP source port
	KeyDstPort = "dst_port" // TCP destination port
	KeyIPID    = "ip_id"    // IPv4 identification field (fragment sets)
	KeySeq     = "seq"      // TCP sequence number

	// ========================================================================
	// RPC & NFS
	// ========================================================================
	KeyXID       = "xid"       // RPC transaction ID (hex)
	KeyMsgType   = "msg_type"  // RPC message type: call, reply
	KeyProgram   = "program"   // RPC program number
	KeyProcedure = "procedure" // RPC procedure number
	KeyOpCode    = "opcode"    // NFSv4 operation code
	KeyOpName    = "op"        // NFSv4 operation name
	KeyStatus    = "status"    // NFSv4 status code

	// ========================================================================
	// Failures & Bounds
	// ========================================================================
	KeyLayer  = "layer"  // Layer at which decoding stopped
	KeyReason = "reason" // Human-readable stop/failure reason
	KeySize   = "size"   // Byte size involved (buffer, fragment, record)
	KeyLimit  = "limit"  // Configured bound that was exceeded
	KeyError  = "error"  // Wrapped error value
)
