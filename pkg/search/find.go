package search

import (
	"errors"
	"io"

	"github.com/nfstrace/nfstrace/pkg/packet"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

// ErrNotFound is returned by Find when the trace ends before any record
// matches. Tests assert absence ("no LOCK between these two points") by
// searching for a counter-example and expecting this error.
var ErrNotFound = errors.New("search: no matching record")

// Find scans forward from the iterator's current point and returns the
// first matching record. It returns ErrNotFound at a clean end of trace,
// trace.ErrAwaitingData when a growing capture runs out of complete
// records, and any fatal reader error as is.
//
// Repeated Find calls on one iterator continue where the previous match
// left off, so a forward scan never decodes a record twice.
func (it *Iterator) Find(pred Predicate) (*packet.Record, error) {
	return it.FindAfter(pred, it.pos)
}

// FindAfter scans forward and returns the first match among records
// strictly after position from. Records between the cursor and from are
// still decoded, keeping flow and call state intact, but are not offered
// to the predicate. from must not precede the iterator's current position;
// rewinding requires a fresh iterator (or Resume).
func (it *Iterator) FindAfter(pred Predicate, from trace.Position) (*packet.Record, error) {
	for {
		rec, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if !rec.Pos.After(from) {
			continue
		}
		if pred.Match(rec) {
			return rec, nil
		}
	}
}

// Each calls fn for every remaining record, stopping early when fn returns
// false. It swallows the clean end of trace and returns any other error.
func (it *Iterator) Each(fn func(rec *packet.Record) bool) error {
	for {
		rec, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
}
