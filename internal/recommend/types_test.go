// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"strings"
	"testing"
)

func TestInteractionTypeWeight(t *testing.T) {
	tests := []struct {
		in   InteractionType
		want float64
	}{
		{InteractionCompleted, 5.0},
		{InteractionBooking, 5.0},
		{InteractionWishlist, 3.0},
		{InteractionClick, 2.0},
		{InteractionView, 1.0},
		{InteractionRating, 1.0},
		{"unknown", 1.0},
	}
	for _, tt := range tests {
		if got := tt.in.Weight(); got != tt.want {
			t.Errorf("Weight(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTableStatsDescribe(t *testing.T) {
	s := TableStats{Rows: 10, RawEvents: 25, Users: 4, Items: 5, Density: 0.5}
	got := s.Describe()
	for _, want := range []string{"10 rows", "25 events", "4 users", "5 items"} {
		if !strings.Contains(got, want) {
			t.Errorf("Describe() = %q, missing %q", got, want)
		}
	}
}
