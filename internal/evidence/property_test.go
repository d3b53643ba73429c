package evidence

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genName() gopter.Gen {
	return gen.Identifier().SuchThat(func(s string) bool { return ValidateName(s) == nil })
}

func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	seed := func(names []string, values []float64) []byte {
		doc := NewDocument("storage")
		for i, n := range names {
			v := 0.0
			if i < len(values) {
				v = values[i]
			}
			next, err := MergeComponent(doc, n, &Result{Summary: map[string]float64{"total": v}})
			if err != nil {
				return doc
			}
			doc = next
		}
		return doc
	}

	properties.Property("merging the same result twice equals merging once", prop.ForAll(
		func(names []string, values []float64, target string, n float64) bool {
			doc := seed(names, values)
			r := &Result{Summary: map[string]float64{"total": n}, Payload: map[string]any{"k": target}}
			once, err1 := MergeComponent(doc, target, r)
			twice, err2 := MergeComponent(once, target, r)
			return err1 == nil && err2 == nil && string(once) == string(twice)
		},
		gen.SliceOfN(5, genName()),
		gen.SliceOfN(5, gen.Float64Range(0, 1000)),
		genName(),
		gen.Float64Range(0, 1000),
	))

	properties.Property("merging A leaves every other entry byte-identical", prop.ForAll(
		func(names []string, values []float64, target string, n float64) bool {
			doc := seed(names, values)
			before := Components(doc)
			out, err := MergeComponent(doc, target, &Result{Summary: map[string]float64{"total": n}})
			if err != nil {
				return false
			}
			after := Components(out)
			for name, raw := range before {
				if name == target {
					continue
				}
				if string(after[name]) != string(raw) {
					return false
				}
			}
			_, ok := after[target]
			return ok
		},
		gen.SliceOfN(5, genName()),
		gen.SliceOfN(5, gen.Float64Range(0, 1000)),
		genName(),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}
