package param

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genCollection generates a mixed collection of scalars and vectors with
// random optimize flags.
func genCollection() gopter.Gen {
	genEntry := gopter.CombineGens(
		gen.Bool(),                                   // vector or scalar
		gen.Bool(),                                   // optimizable
		gen.SliceOfN(3, gen.Float64Range(-1e3, 1e3)), // payload
	).Map(func(r *gopter.GenResult) *gopter.GenResult {
		// Mapping via *GenResult keeps the element ResultType as `any`:
		// a plain mapper returning `any` trips gopter's *GenResult
		// output detection and panics inside gen.Map.
		out := &gopter.GenResult{
			Shrinker:   gopter.NoShrinker,
			Labels:     r.Labels,
			ResultType: reflect.TypeOf((*any)(nil)).Elem(),
		}
		raw, ok := r.Retrieve()
		if !ok {
			return out
		}
		vals := raw.([]interface{})
		isVector := vals[0].(bool)
		optimize := vals[1].(bool)
		payload := vals[2].([]float64)
		if isVector {
			v, err := NewVector(payload, optimize)
			if err != nil {
				panic(err)
			}
			out.Result = any(v)
			return out
		}
		s := NewScalar(payload[0])
		s.SetOptimizable(optimize)
		out.Result = any(s)
		return out
	})
	return gen.SliceOf(genEntry)
}

// TestPackUnpack_RoundTrip verifies unpack(pack(c)) restores exactly the
// packed values and leaves excluded entries untouched.
func TestPackUnpack_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("unpack of pack is the identity", prop.ForAll(
		func(entries []any) bool {
			excludedBefore, err := Pack(entries, FieldValue, false)
			if err != nil {
				return false
			}

			x, err := Pack(entries, FieldValue, true)
			if err != nil {
				return false
			}
			if err := Unpack(entries, x, true); err != nil {
				return false
			}

			again, err := Pack(entries, FieldValue, true)
			if err != nil || !equalSlices(x, again) {
				return false
			}

			allAfter, err := Pack(entries, FieldValue, false)
			if err != nil {
				return false
			}
			return equalSlices(excludedBefore, allAfter)
		},
		genCollection(),
	))

	properties.TestingRun(t)
}

// TestPack_LengthConservation verifies the packed length equals the sum of
// included entry lengths.
func TestPack_LengthConservation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("packed length is the sum of included lengths", prop.ForAll(
		func(entries []any) bool {
			want := 0
			for _, e := range entries {
				p, ok := e.(Parameter)
				if !ok || !p.Optimizable() {
					continue
				}
				want += p.Len()
			}
			x, err := Pack(entries, FieldValue, true)
			return err == nil && len(x) == want
		},
		genCollection(),
	))

	properties.TestingRun(t)
}

func equalSlices(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
