// Package nfs decodes NFSv4.0 and NFSv4.1 COMPOUND procedures (and their
// CB_COMPOUND callback counterparts) from RPC payloads captured in a trace.
//
// Decoding is strictly read-only: the package turns XDR bytes into typed
// operation records for test assertions and never evaluates protocol
// semantics. Operation codes, status codes, and structure layouts follow
// RFC 7530/7531 (NFSv4.0) and RFC 8881 (NFSv4.1, including the pNFS
// operations).
package nfs

// ============================================================================
// RPC-Level Identification
// ============================================================================

const (
	// Program is the ONC RPC program number for NFS.
	Program = 100003

	// TransientProgramLow/High bound the transient program range. NFSv4
	// callback services are registered at an arbitrary program number in
	// this range, so any call there is tried as a CB_COMPOUND.
	TransientProgramLow  = 0x40000000
	TransientProgramHigh = 0x60000000

	// PROC_NULL and PROC_COMPOUND are the only NFSv4 procedures (RFC 7530
	// Section 16). The callback program mirrors them as CB_NULL/CB_COMPOUND.
	PROC_NULL     = 0
	PROC_COMPOUND = 1
)

// ============================================================================
// Protocol Limits
// ============================================================================

const (
	// NFS4_FHSIZE is the maximum file handle size in bytes (RFC 7530).
	NFS4_FHSIZE = 128

	// NFS4_SESSIONID_SIZE is the NFSv4.1 session identifier size (RFC 8881).
	NFS4_SESSIONID_SIZE = 16

	// NFS4_VERIFIER_SIZE is the size of verifier4 (RFC 7530).
	NFS4_VERIFIER_SIZE = 8

	// NFS4_DEVICEID4_SIZE is the pNFS device identifier size (RFC 8881).
	NFS4_DEVICEID4_SIZE = 16

	// NFS4_OTHER_SIZE is the size of the "other" field in stateid4.
	NFS4_OTHER_SIZE = 12

	// MaxCompoundOps bounds the number of operations decoded from a single
	// COMPOUND. A count beyond this is treated as a malformed compound
	// rather than an allocation request.
	MaxCompoundOps = 1024

	// MaxReadData bounds READ4resok data. Servers commonly advertise 1MB
	// rsize; 4MB leaves room for unusual configurations without letting a
	// corrupt length field allocate the whole trace.
	MaxReadData = 4 * 1024 * 1024
)

// ============================================================================
// NFSv4 Operation Numbers (nfs_opnum4)
// ============================================================================
//
// Per RFC 7530 Section 16.1 (NFSv4.0, ops 3-39) and RFC 8881 Section 18
// (NFSv4.1, ops 40-58).

const (
	OP_ACCESS              = 3
	OP_CLOSE               = 4
	OP_COMMIT              = 5
	OP_CREATE              = 6
	OP_DELEGPURGE          = 7
	OP_DELEGRETURN         = 8
	OP_GETATTR             = 9
	OP_GETFH               = 10
	OP_LINK                = 11
	OP_LOCK                = 12
	OP_LOCKT               = 13
	OP_LOCKU               = 14
	OP_LOOKUP              = 15
	OP_LOOKUPP             = 16
	OP_NVERIFY             = 17
	OP_OPEN                = 18
	OP_OPENATTR            = 19
	OP_OPEN_CONFIRM        = 20
	OP_OPEN_DOWNGRADE      = 21
	OP_PUTFH               = 22
	OP_PUTPUBFH            = 23
	OP_PUTROOTFH           = 24
	OP_READ                = 25
	OP_READDIR             = 26
	OP_READLINK            = 27
	OP_REMOVE              = 28
	OP_RENAME              = 29
	OP_RENEW               = 30
	OP_RESTOREFH           = 31
	OP_SAVEFH              = 32
	OP_SECINFO             = 33
	OP_SETATTR             = 34
	OP_SETCLIENTID         = 35
	OP_SETCLIENTID_CONFIRM = 36
	OP_VERIFY              = 37
	OP_WRITE               = 38
	OP_RELEASE_LOCKOWNER   = 39

	OP_BACKCHANNEL_CTL      = 40
	OP_BIND_CONN_TO_SESSION = 41
	OP_EXCHANGE_ID          = 42
	OP_CREATE_SESSION       = 43
	OP_DESTROY_SESSION      = 44
	OP_FREE_STATEID         = 45
	OP_GET_DIR_DELEGATION   = 46
	OP_GETDEVICEINFO        = 47
	OP_GETDEVICELIST        = 48
	OP_LAYOUTCOMMIT         = 49
	OP_LAYOUTGET            = 50
	OP_LAYOUTRETURN         = 51
	OP_SECINFO_NO_NAME      = 52
	OP_SEQUENCE             = 53
	OP_SET_SSV              = 54
	OP_TEST_STATEID         = 55
	OP_WANT_DELEGATION      = 56
	OP_DESTROY_CLIENTID     = 57
	OP_RECLAIM_COMPLETE     = 58

	// OP_ILLEGAL marks unknown/illegal operations (RFC 7530 Section 16.2.4).
	OP_ILLEGAL = 10044
)

// ============================================================================
// NFSv4 Callback Operation Numbers (nfs_cb_opnum4)
// ============================================================================
//
// Per RFC 7530 Section 17 and RFC 8881 Section 20.

const (
	OP_CB_GETATTR              = 3
	OP_CB_RECALL               = 4
	OP_CB_LAYOUTRECALL         = 5
	OP_CB_NOTIFY               = 6
	OP_CB_PUSH_DELEG           = 7
	OP_CB_RECALL_ANY           = 8
	OP_CB_RECALLABLE_OBJ_AVAIL = 9
	OP_CB_RECALL_SLOT          = 10
	OP_CB_SEQUENCE             = 11
	OP_CB_WANTS_CANCELLED      = 12
	OP_CB_NOTIFY_LOCK          = 13
	OP_CB_NOTIFY_DEVICEID      = 14

	OP_CB_ILLEGAL = 10044
)

// opNames maps forward-channel operation codes to their RFC names.
var opNames = map[uint32]string{
	OP_ACCESS:               "ACCESS",
	OP_CLOSE:                "CLOSE",
	OP_COMMIT:               "COMMIT",
	OP_CREATE:               "CREATE",
	OP_DELEGPURGE:           "DELEGPURGE",
	OP_DELEGRETURN:          "DELEGRETURN",
	OP_GETATTR:              "GETATTR",
	OP_GETFH:                "GETFH",
	OP_LINK:                 "LINK",
	OP_LOCK:                 "LOCK",
	OP_LOCKT:                "LOCKT",
	OP_LOCKU:                "LOCKU",
	OP_LOOKUP:               "LOOKUP",
	OP_LOOKUPP:              "LOOKUPP",
	OP_NVERIFY:              "NVERIFY",
	OP_OPEN:                 "OPEN",
	OP_OPENATTR:             "OPENATTR",
	OP_OPEN_CONFIRM:         "OPEN_CONFIRM",
	OP_OPEN_DOWNGRADE:       "OPEN_DOWNGRADE",
	OP_PUTFH:                "PUTFH",
	OP_PUTPUBFH:             "PUTPUBFH",
	OP_PUTROOTFH:            "PUTROOTFH",
	OP_READ:                 "READ",
	OP_READDIR:              "READDIR",
	OP_READLINK:             "READLINK",
	OP_REMOVE:               "REMOVE",
	OP_RENAME:               "RENAME",
	OP_RENEW:                "RENEW",
	OP_RESTOREFH:            "RESTOREFH",
	OP_SAVEFH:               "SAVEFH",
	OP_SECINFO:              "SECINFO",
	OP_SETATTR:              "SETATTR",
	OP_SETCLIENTID:          "SETCLIENTID",
	OP_SETCLIENTID_CONFIRM:  "SETCLIENTID_CONFIRM",
	OP_VERIFY:               "VERIFY",
	OP_WRITE:                "WRITE",
	OP_RELEASE_LOCKOWNER:    "RELEASE_LOCKOWNER",
	OP_BACKCHANNEL_CTL:      "BACKCHANNEL_CTL",
	OP_BIND_CONN_TO_SESSION: "BIND_CONN_TO_SESSION",
	OP_EXCHANGE_ID:          "EXCHANGE_ID",
	OP_CREATE_SESSION:       "CREATE_SESSION",
	OP_DESTROY_SESSION:      "DESTROY_SESSION",
	OP_FREE_STATEID:         "FREE_STATEID",
	OP_GET_DIR_DELEGATION:   "GET_DIR_DELEGATION",
	OP_GETDEVICEINFO:        "GETDEVICEINFO",
	OP_GETDEVICELIST:        "GETDEVICELIST",
	OP_LAYOUTCOMMIT:         "LAYOUTCOMMIT",
	OP_LAYOUTGET:            "LAYOUTGET",
	OP_LAYOUTRETURN:         "LAYOUTRETURN",
	OP_SECINFO_NO_NAME:      "SECINFO_NO_NAME",
	OP_SEQUENCE:             "SEQUENCE",
	OP_SET_SSV:              "SET_SSV",
	OP_TEST_STATEID:         "TEST_STATEID",
	OP_WANT_DELEGATION:      "WANT_DELEGATION",
	OP_DESTROY_CLIENTID:     "DESTROY_CLIENTID",
	OP_RECLAIM_COMPLETE:     "RECLAIM_COMPLETE",
	OP_ILLEGAL:              "ILLEGAL",
}

// cbOpNames maps callback operation codes to their RFC names.
var cbOpNames = map[uint32]string{
	OP_CB_GETATTR:              "CB_GETATTR",
	OP_CB_RECALL:               "CB_RECALL",
	OP_CB_LAYOUTRECALL:         "CB_LAYOUTRECALL",
	OP_CB_NOTIFY:               "CB_NOTIFY",
	OP_CB_PUSH_DELEG:           "CB_PUSH_DELEG",
	OP_CB_RECALL_ANY:           "CB_RECALL_ANY",
	OP_CB_RECALLABLE_OBJ_AVAIL: "CB_RECALLABLE_OBJ_AVAIL",
	OP_CB_RECALL_SLOT:          "CB_RECALL_SLOT",
	OP_CB_SEQUENCE:             "CB_SEQUENCE",
	OP_CB_WANTS_CANCELLED:      "CB_WANTS_CANCELLED",
	OP_CB_NOTIFY_LOCK:          "CB_NOTIFY_LOCK",
	OP_CB_NOTIFY_DEVICEID:      "CB_NOTIFY_DEVICEID",
	OP_CB_ILLEGAL:              "CB_ILLEGAL",
}

// OpName returns the RFC name for a forward-channel operation code, or a
// numeric form for codes outside the known set.
func OpName(code uint32) string {
	if name, ok := opNames[code]; ok {
		return name
	}
	return numericOpName(code)
}

// CBOpName returns the RFC name for a callback operation code.
func CBOpName(code uint32) string {
	if name, ok := cbOpNames[code]; ok {
		return name
	}
	return numericOpName(code)
}

func numericOpName(code uint32) string {
	return "OP_" + uitoa(code)
}

// uitoa avoids pulling strconv into the hot decode path for a cold branch.
func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ============================================================================
// Status Codes (nfsstat4)
// ============================================================================
//
// Only the codes that trace assertions care about get names; everything else
// is rendered numerically. The decoder passes status through untouched.

const (
	NFS4_OK = 0

	NFS4ERR_PERM   = 1
	NFS4ERR_NOENT  = 2
	NFS4ERR_IO     = 5
	NFS4ERR_ACCESS = 13
	NFS4ERR_EXIST  = 17
	NFS4ERR_NOTDIR = 20
	NFS4ERR_ISDIR  = 21
	NFS4ERR_INVAL  = 22
	NFS4ERR_NOSPC  = 28
	NFS4ERR_STALE  = 70

	NFS4ERR_BADHANDLE           = 10001
	NFS4ERR_NOTSUPP             = 10004
	NFS4ERR_TOOSMALL            = 10005
	NFS4ERR_DELAY               = 10008
	NFS4ERR_DENIED              = 10010
	NFS4ERR_EXPIRED             = 10011
	NFS4ERR_LOCKED              = 10012
	NFS4ERR_GRACE               = 10013
	NFS4ERR_CLID_INUSE          = 10017
	NFS4ERR_MINOR_VERS_MISMATCH = 10021
	NFS4ERR_STALE_CLIENTID      = 10022
	NFS4ERR_STALE_STATEID       = 10023
	NFS4ERR_OLD_STATEID         = 10024
	NFS4ERR_BAD_STATEID         = 10025
	NFS4ERR_BAD_SEQID           = 10026
	NFS4ERR_BADXDR              = 10036
	NFS4ERR_OP_ILLEGAL          = 10044
	NFS4ERR_BADSESSION          = 10052
	NFS4ERR_LAYOUTTRYLATER      = 10058
	NFS4ERR_NOMATCHING_LAYOUT   = 10060
	NFS4ERR_UNKNOWN_LAYOUTTYPE  = 10062
	NFS4ERR_SEQ_MISORDERED      = 10063
	NFS4ERR_SEQUENCE_POS        = 10064
)

// ============================================================================
// pNFS Constants (RFC 8881 Section 3.3)
// ============================================================================

// Layout types per RFC 8881 Section 3.3.13 (layouttype4).
const (
	LAYOUT4_NFSV4_1_FILES = 1
	LAYOUT4_OSD2_OBJECTS  = 2
	LAYOUT4_BLOCK_VOLUME  = 3
)

// Layout I/O modes per RFC 8881 Section 3.3.20 (layoutiomode4).
const (
	LAYOUTIOMODE4_READ = 1
	LAYOUTIOMODE4_RW   = 2
	LAYOUTIOMODE4_ANY  = 3 // LAYOUTRETURN and CB_LAYOUTRECALL only
)

// Layout return types per RFC 8881 Section 18.44 (layoutreturn_type4).
const (
	LAYOUTRETURN4_FILE = 1
	LAYOUTRETURN4_FSID = 2
	LAYOUTRETURN4_ALL  = 3
)

// NFS4_UINT64_MAX as a layout length means "to end of file".
const NFS4_UINT64_MAX = ^uint64(0)

// ============================================================================
// Open/Delegation Constants (RFC 7530 Section 16.16)
// ============================================================================

const (
	OPEN4_NOCREATE = 0
	OPEN4_CREATE   = 1

	UNCHECKED4   = 0
	GUARDED4     = 1
	EXCLUSIVE4   = 2
	EXCLUSIVE4_1 = 3 // NFSv4.1 (RFC 8881 Section 18.16)

	CLAIM_NULL          = 0
	CLAIM_PREVIOUS      = 1
	CLAIM_DELEGATE_CUR  = 2
	CLAIM_DELEGATE_PREV = 3
	CLAIM_FH            = 4 // NFSv4.1
	CLAIM_DELEG_CUR_FH  = 5 // NFSv4.1
	CLAIM_DELEG_PREV_FH = 6 // NFSv4.1

	OPEN_DELEGATE_NONE     = 0
	OPEN_DELEGATE_READ     = 1
	OPEN_DELEGATE_WRITE    = 2
	OPEN_DELEGATE_NONE_EXT = 3 // NFSv4.1
)

// Lock types per RFC 7530 Section 16.10 (nfs_lock_type4).
const (
	READ_LT   = 1
	WRITE_LT  = 2
	READW_LT  = 3
	WRITEW_LT = 4
)

// Stable storage levels per RFC 7530 Section 16.36 (stable_how4).
const (
	UNSTABLE4  = 0
	DATA_SYNC4 = 1
	FILE_SYNC4 = 2
)
