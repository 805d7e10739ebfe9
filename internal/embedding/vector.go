package embedding

import (
	"encoding/binary"
	"math"
)

// CosineSimilarity computes dot(a,b) / (|a|*|b|) in float64.
// Returns 0 if the lengths differ or either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	// One square root keeps a vector's similarity to itself at exactly 1.
	denom := math.Sqrt(normA * normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Float32sToBytes converts a float32 slice to raw little-endian bytes.
func Float32sToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToFloat32s converts raw little-endian bytes back to a float32 slice.
func BytesToFloat32s(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := range n {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
