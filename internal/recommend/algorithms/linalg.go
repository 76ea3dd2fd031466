// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package algorithms

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

// errSingularMatrix is returned when a normal-equation system cannot be
// factorized. With a positive regularization term this should not occur.
var errSingularMatrix = errors.New("algorithms: singular normal-equation matrix")

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// cosineSimilarity returns the cosine of the angle between two factor
// vectors, or 0 when either has zero norm.
func cosineSimilarity(a, b []float64) float64 {
	var dotProd, normA, normB float64
	for i := range a {
		dotProd += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}

// gaussianMatrix allocates rows x cols factors drawn from N(0, stddev^2)
// using the supplied source, so training runs are reproducible under a
// fixed seed.
func gaussianMatrix(rng *rand.Rand, rows, cols int, stddev float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = rng.NormFloat64() * stddev
		}
		m[i] = row
	}
	return m
}

// solveCholesky solves A x = b for a symmetric positive-definite A via
// Cholesky decomposition. A is modified in place.
func solveCholesky(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)

	// Decompose A = L Lᵗ, storing L in the lower triangle of a.
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= a[i][k] * a[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, errSingularMatrix
				}
				a[i][i] = math.Sqrt(sum)
			} else {
				a[i][j] = sum / a[j][j]
			}
		}
	}

	// Forward substitution: L y = b.
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= a[i][k] * y[k]
		}
		y[i] = sum / a[i][i]
	}

	// Back substitution: Lᵗ x = y.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < n; k++ {
			sum -= a[k][i] * x[k]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

// recLess orders recommendations by score descending, item ID ascending as
// the tiebreak for deterministic output.
func recLess(a, b recommend.Recommendation) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ItemID < b.ItemID
}

// topKRecommendations returns the k best candidates in ranked order.
// Candidates are first partitioned around the k-th best, so only the
// winning prefix pays for a sort: O(n + k log k) instead of sorting all n.
func topKRecommendations(recs []recommend.Recommendation, k int) []recommend.Recommendation {
	if k > 0 && k < len(recs) {
		selectTopK(recs, k)
		recs = recs[:k]
	}
	sort.Slice(recs, func(i, j int) bool { return recLess(recs[i], recs[j]) })
	return recs
}

// selectTopK partially orders recs so the k best occupy the prefix, in no
// particular order. Iterative quickselect with a median-of-three pivot.
func selectTopK(recs []recommend.Recommendation, k int) {
	lo, hi := 0, len(recs)-1
	for lo < hi {
		p := partitionRecs(recs, lo, hi)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

func partitionRecs(recs []recommend.Recommendation, lo, hi int) int {
	mid := lo + (hi-lo)/2
	if recLess(recs[mid], recs[lo]) {
		recs[lo], recs[mid] = recs[mid], recs[lo]
	}
	if recLess(recs[hi], recs[lo]) {
		recs[lo], recs[hi] = recs[hi], recs[lo]
	}
	if recLess(recs[hi], recs[mid]) {
		recs[mid], recs[hi] = recs[hi], recs[mid]
	}
	recs[mid], recs[hi] = recs[hi], recs[mid]

	pivot := recs[hi]
	i := lo
	for j := lo; j < hi; j++ {
		if recLess(recs[j], pivot) {
			recs[i], recs[j] = recs[j], recs[i]
			i++
		}
	}
	recs[i], recs[hi] = recs[hi], recs[i]
	return i
}
