// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-pubsub.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uadp

import (
	"encoding/binary"
	"fmt"

	"github.com/ClusterCockpit/cc-pubsub/pkg/ua"
)

// writer is a bounds-checked little-endian cursor over a fixed-size
// destination slice, used for the second ("write in place") encoding pass
// of spec.md §4.2.
type writer struct {
	dst []byte
	pos int
}

func newWriter(dst []byte) *writer { return &writer{dst: dst} }

func (w *writer) ensure(n int) error {
	if w.pos+n > len(w.dst) {
		return fmt.Errorf("%w: buffer too small", ua.BadEncodingLimitsExceeded)
	}
	return nil
}

func (w *writer) byte(b byte) error {
	if err := w.ensure(1); err != nil {
		return err
	}
	w.dst[w.pos] = b
	w.pos++
	return nil
}

func (w *writer) bytes(b []byte) error {
	if err := w.ensure(len(b)); err != nil {
		return err
	}
	copy(w.dst[w.pos:], b)
	w.pos += len(b)
	return nil
}

func (w *writer) u16(v uint16) error {
	if err := w.ensure(2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(w.dst[w.pos:], v)
	w.pos += 2
	return nil
}

func (w *writer) u32(v uint32) error {
	if err := w.ensure(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(w.dst[w.pos:], v)
	w.pos += 4
	return nil
}

func (w *writer) u64(v uint64) error {
	if err := w.ensure(8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(w.dst[w.pos:], v)
	w.pos += 8
	return nil
}

func (w *writer) i64(v int64) error { return w.u64(uint64(v)) }

// offset returns the current offset and lets callers record it in the offset
// table (spec.md §4.2's "offset table").
func (w *writer) offset() int { return w.pos }

// reader is the matching little-endian decode cursor.
type reader struct {
	src []byte
	pos int
}

func newReader(src []byte) *reader { return &reader{src: src} }

func (r *reader) remaining() int { return len(r.src) - r.pos }

func (r *reader) ensure(n int) error {
	if r.pos+n > len(r.src) {
		return fmt.Errorf("%w: truncated message", ua.BadDecodingError)
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.ensure(1); err != nil {
		return 0, err
	}
	b := r.src[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.ensure(n); err != nil {
		return nil, err
	}
	b := r.src[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.ensure(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.src[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.ensure(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.src[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.ensure(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.src[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}
