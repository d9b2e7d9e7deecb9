package param

import (
	"errors"
	"fmt"
	"log/slog"
)

// Field selects which per-parameter quantity Pack reads.
type Field int

const (
	// FieldValue packs the resolved parameter values.
	FieldValue Field = iota
	// FieldLowerBound packs the per-component lower bounds.
	FieldLowerBound
	// FieldUpperBound packs the per-component upper bounds.
	FieldUpperBound
)

var (
	// ErrUnknownField is returned for a Field outside the defined set.
	ErrUnknownField = errors.New("param: unknown pack field")

	// ErrLengthMismatch is returned by Unpack when the flat vector's length
	// does not exactly match the collection. It signals a broken ordering
	// contract between a Pack call and its paired Unpack call and is never
	// resolved silently.
	ErrLengthMismatch = errors.New("param: flat vector length does not match collection")

	// ErrZeroLength is returned by Unpack when an included parameter reports
	// length zero, which would desynchronize the slicing of every parameter
	// after it.
	ErrZeroLength = errors.New("param: included parameter has zero length")
)

// A Collection is an ordered sequence of parameters making up one
// optimization problem. Entries that are not Parameters are legal bookkeeping
// placeholders: the codec skips them with a warning instead of aborting.
// Ordering is significant — Pack and its paired Unpack must walk the same
// collection in the same order with the same optimizableOnly setting.
type Collection = []any

// include applies the codec's shared skip logic. Non-Parameter entries are
// reported via the second return so callers can warn exactly once.
func include(entry any, optimizableOnly bool) (Parameter, bool) {
	p, ok := entry.(Parameter)
	if !ok {
		return nil, false
	}
	if optimizableOnly && !p.Optimizable() {
		return nil, false
	}
	return p, true
}

// Pack walks the collection once and concatenates the requested field of
// every included parameter into a single flat vector. When optimizableOnly is
// true, parameters with the optimize flag off contribute nothing. A
// collection with no included entries yields an empty, non-nil vector.
func Pack(params Collection, field Field, optimizableOnly bool) ([]float64, error) {
	if field != FieldValue && field != FieldLowerBound && field != FieldUpperBound {
		return nil, ErrUnknownField
	}

	total := 0
	for i, entry := range params {
		if _, ok := entry.(Parameter); !ok {
			slog.Warn("collection entry is not a parameter, ignoring it",
				"index", i, "type", fmt.Sprintf("%T", entry))
			continue
		}
		p, ok := include(entry, optimizableOnly)
		if !ok {
			continue
		}
		total += p.Len()
	}

	out := make([]float64, 0, total)
	for _, entry := range params {
		p, ok := include(entry, optimizableOnly)
		if !ok {
			continue
		}
		var src []float64
		switch field {
		case FieldValue:
			src = p.Value()
		case FieldLowerBound:
			src, _ = p.Bounds()
		case FieldUpperBound:
			_, src = p.Bounds()
		}
		out = append(out, src...)
	}

	if len(out) != total {
		// A parameter changed length between the two walks; treat it like a
		// broken pack/unpack contract.
		return nil, fmt.Errorf("%w: wrote %d slots, expected %d", ErrLengthMismatch, len(out), total)
	}
	return out, nil
}

// PackBounds packs the lower and upper bound vectors matching a
// Pack(FieldValue) call over the same collection.
func PackBounds(params Collection, optimizableOnly bool) (lower, upper []float64, err error) {
	lower, err = Pack(params, FieldLowerBound, optimizableOnly)
	if err != nil {
		return nil, nil, err
	}
	upper, err = Pack(params, FieldUpperBound, optimizableOnly)
	if err != nil {
		return nil, nil, err
	}
	return lower, upper, nil
}

// Unpack restores a flat vector into the collection in place, walking the
// collection with the exact same skip logic as Pack. The flat vector must
// account for every included slot: no silent truncation, no silent padding.
// The length check runs before the first assignment, so a mismatched vector
// leaves every parameter untouched. An empty vector over a collection with
// nothing included is a valid no-op.
func Unpack(params Collection, x []float64, optimizableOnly bool) error {
	total := 0
	for _, entry := range params {
		p, ok := include(entry, optimizableOnly)
		if !ok {
			continue
		}
		n := p.Len()
		if n == 0 {
			return ErrZeroLength
		}
		total += n
	}
	if total != len(x) {
		return fmt.Errorf("%w: collection has %d slots, got %d values", ErrLengthMismatch, total, len(x))
	}

	idx := 0
	for _, entry := range params {
		p, ok := include(entry, optimizableOnly)
		if !ok {
			continue
		}
		n := p.Len()
		if idx+n > len(x) {
			// A parameter changed length between the two walks; treat it like
			// a broken pack/unpack contract.
			return fmt.Errorf("%w: need at least %d values, got %d", ErrLengthMismatch, idx+n, len(x))
		}
		if err := p.SetValue(x[idx : idx+n]); err != nil {
			return fmt.Errorf("param: restoring slots %d..%d: %w", idx, idx+n, err)
		}
		idx += n
	}
	return nil
}
