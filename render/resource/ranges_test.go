package resource

import (
	"slices"
	"testing"
)

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name string
		in   []Range
		want []Range
	}{
		{"empty", nil, nil},
		{"single", []Range{{0, 8}}, []Range{{0, 8}}},
		{"disjoint", []Range{{0, 4}, {16, 4}}, []Range{{0, 4}, {16, 4}}},
		{"adjacent", []Range{{0, 4}, {4, 4}}, []Range{{0, 8}}},
		{"overlapping", []Range{{0, 8}, {4, 8}}, []Range{{0, 12}}},
		{"contained", []Range{{0, 16}, {4, 4}}, []Range{{0, 16}}},
		{"unsorted", []Range{{12, 4}, {0, 4}, {4, 8}}, []Range{{0, 16}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := slices.Clone(tt.in)
			got := Coalesce(in)
			if len(got) != len(tt.want) {
				t.Fatalf("Coalesce(%v) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Coalesce(%v) = %v, want %v", tt.in, got, tt.want)
				}
			}
		})
	}
}

func TestRangeEnd(t *testing.T) {
	r := Range{Off: 8, Len: 24}
	if r.End() != 32 {
		t.Errorf("End() = %d, want 32", r.End())
	}
}
