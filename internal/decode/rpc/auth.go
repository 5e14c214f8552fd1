package rpc

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// RPCSEC_GSS control procedures (RFC 2203 Section 5.2).
const (
	GSSDataProc     = 0
	GSSInitProc     = 1
	GSSContinueInit = 2
	GSSDestroyProc  = 3
)

// RPCSEC_GSS services (RFC 2203 Section 5.1).
const (
	GSSServiceNone      = 1
	GSSServiceIntegrity = 2
	GSSServicePrivacy   = 3
)

// AuthSysCred is the AUTH_SYS credential body (RFC 5531 Appendix A).
type AuthSysCred struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

func (c *AuthSysCred) String() string {
	return fmt.Sprintf("AUTH_SYS(machine=%s, uid=%d, gid=%d, gids=%d)",
		c.MachineName, c.UID, c.GID, len(c.GIDs))
}

func decodeAuthSys(body []byte) (*AuthSysCred, error) {
	cred := &AuthSysCred{}
	if _, err := xdr.Unmarshal(bytes.NewReader(body), cred); err != nil {
		return nil, fmt.Errorf("authsys body: %w", err)
	}
	if len(cred.GIDs) > 16 {
		return nil, fmt.Errorf("authsys gids count %d exceeds 16", len(cred.GIDs))
	}
	return cred, nil
}

// EncodeAuthSys renders an AUTH_SYS credential body, used when building
// call fixtures.
func EncodeAuthSys(cred *AuthSysCred) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, cred); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GSSCred is the RPCSEC_GSS credential body, version 1 (RFC 2203
// Section 5.3.1). The context handle pairs the call with an established
// GSS context; the payload beyond the header stays opaque since the trace
// holds no session keys.
type GSSCred struct {
	Version uint32
	Proc    uint32
	SeqNum  uint32
	Service uint32
	Handle  []byte
}

func (c *GSSCred) String() string {
	return fmt.Sprintf("RPCSEC_GSS(proc=%d, seq=%d, service=%d)", c.Proc, c.SeqNum, c.Service)
}

func decodeGSSCred(body []byte) (*GSSCred, error) {
	cred := &GSSCred{}
	if _, err := xdr.Unmarshal(bytes.NewReader(body), cred); err != nil {
		return nil, fmt.Errorf("gss cred body: %w", err)
	}
	if cred.Version != 1 {
		return nil, fmt.Errorf("gss cred version %d is not 1", cred.Version)
	}
	return cred, nil
}
