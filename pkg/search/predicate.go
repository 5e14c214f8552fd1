package search

import (
	"fmt"

	"github.com/nfstrace/nfstrace/pkg/packet"
)

// Predicate decides whether a decoded record matches. Predicates are pure:
// they read the record and keep no state, so they compose freely.
type Predicate interface {
	Match(rec *packet.Record) bool
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(rec *packet.Record) bool

func (f PredicateFunc) Match(rec *packet.Record) bool { return f(rec) }

// ============================================================================
// Combinators
// ============================================================================

// And matches when every predicate matches. With no arguments it matches
// everything.
func And(preds ...Predicate) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		for _, p := range preds {
			if !p.Match(rec) {
				return false
			}
		}
		return true
	})
}

// Or matches when at least one predicate matches.
func Or(preds ...Predicate) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		for _, p := range preds {
			if p.Match(rec) {
				return true
			}
		}
		return false
	})
}

// Not inverts a predicate.
func Not(p Predicate) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		return !p.Match(rec)
	})
}

// ============================================================================
// Field Matchers
// ============================================================================

// FieldEquals matches records whose "layer.field" value equals want.
// Numeric values compare across integer widths, everything else compares by
// its string form, so FieldEquals("ip.src", "192.168.1.10") works without
// constructing an address value.
func FieldEquals(path string, want any) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		got, ok := rec.Field(path)
		return ok && valuesEqual(got, want)
	})
}

// FieldIn matches records whose field value equals any of the candidates.
func FieldIn(path string, candidates ...any) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		got, ok := rec.Field(path)
		if !ok {
			return false
		}
		for _, want := range candidates {
			if valuesEqual(got, want) {
				return true
			}
		}
		return false
	})
}

// FieldRange matches records whose numeric field value lies in [lo, hi].
// Non-numeric fields never match.
func FieldRange(path string, lo, hi uint64) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		got, ok := rec.Field(path)
		if !ok {
			return false
		}
		n, ok := toUint64(got)
		return ok && n >= lo && n <= hi
	})
}

// HasLayer matches records where the named layer decoded.
func HasLayer(name string) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		return rec.Layer(name) != nil
	})
}

// ============================================================================
// Domain Matchers
// ============================================================================

// XID matches every RPC message on the record with the given transaction
// ID, calls and replies alike, so one predicate follows a full exchange.
func XID(xid uint32) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		for _, m := range rec.Messages() {
			if m.RPC != nil && m.RPC.XID == xid {
				return true
			}
		}
		return false
	})
}

// Op matches records whose NFS compound (or any trailing compound in the
// same segment) contains the named operation, for example "LAYOUTGET" or
// "CB_RECALL".
func Op(name string) Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		for _, m := range rec.Messages() {
			if m.NFS == nil {
				continue
			}
			for i := range m.NFS.Ops {
				if m.NFS.Ops[i].Name() == name {
					return true
				}
			}
		}
		return false
	})
}

// UnmatchedReply matches replies whose call never appeared in the trace.
func UnmatchedReply() Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		for _, m := range rec.Messages() {
			if m.RPC != nil && m.RPC.Unmatched {
				return true
			}
		}
		return false
	})
}

// Stopped matches records whose decoding stopped short of a full chain.
func Stopped() Predicate {
	return PredicateFunc(func(rec *packet.Record) bool {
		return !rec.Stop.Ok()
	})
}

// ============================================================================
// Value Comparison
// ============================================================================

// valuesEqual compares a decoded field value against a caller-supplied one.
// Integers compare by value regardless of width or signedness; everything
// else falls back to the string form.
func valuesEqual(got, want any) bool {
	if gn, ok := toUint64(got); ok {
		if wn, ok := toUint64(want); ok {
			return gn == wn
		}
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case packet.TCPFlags:
		return uint64(n), true
	default:
		return 0, false
	}
}
