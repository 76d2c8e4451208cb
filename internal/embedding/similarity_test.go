package embedding

import (
	"math"
	"testing"
)

func TestCosineIdentity(t *testing.T) {
	vec := Normalize([]float32{1, 2, 3, 4})
	if sim := Cosine(vec, vec); math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("Cosine(v, v) = %v, want 1.0", sim)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if sim := Cosine(a, b); math.Abs(sim) > 1e-6 {
		t.Errorf("Cosine(orthogonal) = %v, want 0.0", sim)
	}
}

func TestCosineOpposite(t *testing.T) {
	a := []float32{1, 1}
	b := []float32{-1, -1}
	if sim := Cosine(a, b); math.Abs(sim+1.0) > 1e-6 {
		t.Errorf("Cosine(opposite) = %v, want -1.0", sim)
	}
}

func TestCosineLengthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Cosine with mismatched lengths should panic")
		}
	}()
	Cosine([]float32{1, 2}, []float32{1, 2, 3})
}

func TestNormalizeUnitLength(t *testing.T) {
	vec := Normalize([]float32{3, 4})
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-6 {
		t.Errorf("normalized vector has length %v, want 1.0", math.Sqrt(norm))
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	vec := Normalize([]float32{0, 0, 0})
	for i, v := range vec {
		if v != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, v)
		}
	}
}
