// Package search walks decoded packet records lazily: forward iteration
// restartable from any previously observed record position, and predicate
// search over layer fields.
//
// An Iterator owns one trace cursor and one decoder, so it inherits their
// discipline: not safe for concurrent use, one walk per Iterator. Stopping
// is implicit; a caller that wants to stop simply stops calling Next.
package search

import (
	"github.com/nfstrace/nfstrace/internal/decode"
	"github.com/nfstrace/nfstrace/pkg/packet"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

// Iterator decodes a trace one record per Next call. Nothing is read or
// decoded ahead of the caller.
type Iterator struct {
	reader  *trace.Reader
	decoder *decode.Decoder
	pos     trace.Position
}

// NewIterator walks the whole trace from its current cursor. The caller
// keeps ownership of reader and decoder and closes them when done.
func NewIterator(r *trace.Reader, d *decode.Decoder) *Iterator {
	return &Iterator{reader: r, decoder: d}
}

// Open opens a capture file and returns an iterator over it, paired with
// the decoder the iterator feeds. Close releases both.
func Open(path string, cfg decode.Config) (*Iterator, error) {
	r, err := trace.Open(path)
	if err != nil {
		return nil, err
	}
	return NewIterator(r, decode.NewDecoder(cfg)), nil
}

// Next decodes and returns the next record. It returns io.EOF at a clean
// end of trace and trace.ErrAwaitingData when a partial record sits at the
// end of a still-growing capture; both leave the cursor in place so Next
// can be called again after the file grows.
func (it *Iterator) Next() (*packet.Record, error) {
	raw, err := it.reader.Next()
	if err != nil {
		return nil, err
	}
	rec := it.decoder.Decode(raw)
	it.pos = rec.Pos
	return rec, nil
}

// Position returns the position of the last record Next returned. It is
// only meaningful once Next has succeeded at least once.
func (it *Iterator) Position() trace.Position {
	return it.pos
}

// Resume repositions the iterator so that subsequent Next calls yield
// exactly the records after the one at p: no record is duplicated or
// skipped across the resume boundary. Cross-record decoder state (flow
// buffers, pending calls) built before the resume point is not
// reconstructed.
func (it *Iterator) Resume(p trace.Position) error {
	if err := it.reader.Seek(p); err != nil {
		return err
	}
	// The record at p itself was already observed by whoever recorded p.
	raw, err := it.reader.Next()
	if err != nil {
		return err
	}
	it.pos = raw.Pos
	return nil
}

// Decoder exposes the iterator's decoder, for end-of-walk queries such as
// unanswered calls.
func (it *Iterator) Decoder() *decode.Decoder {
	return it.decoder
}

// Reader exposes the iterator's trace cursor, for live-capture callers that
// need to Await file growth between Next calls.
func (it *Iterator) Reader() *trace.Reader {
	return it.reader
}

// Close releases the trace cursor and the decoder's buffers.
func (it *Iterator) Close() error {
	it.decoder.Close()
	return it.reader.Close()
}
