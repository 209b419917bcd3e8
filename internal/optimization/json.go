package optimization

import (
	"encoding/json"
	"math"
)

// jsonFloat encodes NaN and ±Inf as null, which encoding/json rejects.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

type jsonFloats []float64

func (fs jsonFloats) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("null"), nil
	}
	out := make([]jsonFloat, len(fs))
	for i, v := range fs {
		out[i] = jsonFloat(v)
	}
	return json.Marshal(out)
}

// MarshalJSON encodes non-finite values as null.
func (r Report) MarshalJSON() ([]byte, error) {
	type report Report
	return json.Marshal(struct {
		report
		RelativeGradient jsonFloat `json:"relative_gradient"`
	}{report(r), jsonFloat(r.RelativeGradient)})
}

// MarshalJSON encodes non-finite values as null.
func (it Iteration) MarshalJSON() ([]byte, error) {
	type iteration Iteration
	return json.Marshal(struct {
		iteration
		Value            jsonFloat  `json:"value"`
		RelativeGradient jsonFloat  `json:"relative_gradient"`
		Step             jsonFloat  `json:"step"`
		X                jsonFloats `json:"x"`
	}{iteration(it), jsonFloat(it.Value), jsonFloat(it.RelativeGradient), jsonFloat(it.Step), jsonFloats(it.X)})
}

// MarshalJSON encodes non-finite values as null.
func (s Solution) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Parameters jsonFloats `json:"parameters"`
		Value      jsonFloat  `json:"value"`
	}{jsonFloats(s.Parameters), jsonFloat(s.Value)})
}
