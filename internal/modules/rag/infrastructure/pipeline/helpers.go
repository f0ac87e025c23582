package pipeline

import "github.com/google/uuid"

func uuidString() string { return uuid.NewString() }

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(v[i])
	}
	return out
}
