// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package encoding maps opaque external identifiers (user and item IDs) to
// the dense zero-based integer indices required by matrix factorization.
//
// An Encoder is fitted once over the identifiers present in a training set
// and is immutable afterwards. Re-fitting produces a brand-new mapping that
// is incompatible with factor matrices trained against the old one; callers
// must persist and load encoders together with the model they were fitted
// for (see the storage package).
package encoding

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownIdentifier is returned when encoding an identifier that was not
// present at fit time (the cold-start case).
var ErrUnknownIdentifier = errors.New("identifier not seen during fit")

// ErrIndexOutOfRange is returned when decoding an index beyond the fitted range.
var ErrIndexOutOfRange = errors.New("index out of fitted range")

// Encoder assigns each distinct identifier a dense index in [0, Len()).
// Index assignment is stable for the lifetime of one fitted encoder:
// identifiers are sorted before assignment so the same input set always
// produces the same mapping.
type Encoder struct {
	index map[string]int
	ids   []string
}

// NewEncoder returns an unfitted encoder.
func NewEncoder() *Encoder {
	return &Encoder{index: make(map[string]int)}
}

// Fit assigns each distinct identifier in ids a unique dense index.
// Calling Fit on an already-fitted encoder replaces the mapping entirely,
// invalidating all previously encoded indices.
func (e *Encoder) Fit(ids []string) {
	distinct := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		distinct[id] = struct{}{}
	}

	e.ids = make([]string, 0, len(distinct))
	for id := range distinct {
		e.ids = append(e.ids, id)
	}
	sort.Strings(e.ids)

	e.index = make(map[string]int, len(e.ids))
	for i, id := range e.ids {
		e.index[id] = i
	}
}

// Encode returns the dense index for id.
func (e *Encoder) Encode(id string) (int, error) {
	idx, ok := e.index[id]
	if !ok {
		return 0, fmt.Errorf("encode %q: %w", id, ErrUnknownIdentifier)
	}
	return idx, nil
}

// Decode returns the identifier assigned to idx.
func (e *Encoder) Decode(idx int) (string, error) {
	if idx < 0 || idx >= len(e.ids) {
		return "", fmt.Errorf("decode %d (fitted %d): %w", idx, len(e.ids), ErrIndexOutOfRange)
	}
	return e.ids[idx], nil
}

// Contains reports whether id was seen at fit time.
func (e *Encoder) Contains(id string) bool {
	_, ok := e.index[id]
	return ok
}

// Len returns the number of fitted identifiers.
func (e *Encoder) Len() int {
	return len(e.ids)
}

// Classes returns the fitted identifiers in index order. The returned slice
// is a copy; mutating it does not affect the encoder.
func (e *Encoder) Classes() []string {
	out := make([]string, len(e.ids))
	copy(out, e.ids)
	return out
}

// encoderState is the gob wire form of an Encoder. Only the index-ordered
// identifier list is stored; the forward map is rebuilt on decode.
type encoderState struct {
	IDs []string
}

// GobEncode implements gob.GobEncoder.
func (e *Encoder) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(encoderState{IDs: e.ids}); err != nil {
		return nil, fmt.Errorf("encode identifier mapping: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (e *Encoder) GobDecode(data []byte) error {
	var st encoderState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("decode identifier mapping: %w", err)
	}
	e.ids = st.IDs
	e.index = make(map[string]int, len(st.IDs))
	for i, id := range st.IDs {
		e.index[id] = i
	}
	return nil
}
