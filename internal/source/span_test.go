package source

import "testing"

func TestSpanEmptyAndLen(t *testing.T) {
	s := Span{File: 0, Start: 4, End: 4}
	if !s.Empty() {
		t.Error("Expected zero-length span to be empty")
	}
	if s.Len() != 0 {
		t.Errorf("Expected Len 0, got %d", s.Len())
	}

	s = Span{File: 0, Start: 2, End: 7}
	if s.Empty() {
		t.Error("Expected non-empty span")
	}
	if s.Len() != 5 {
		t.Errorf("Expected Len 5, got %d", s.Len())
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 5, End: 10}
	b := Span{File: 1, Start: 2, End: 7}

	got := a.Cover(b)
	if got.Start != 2 || got.End != 10 {
		t.Errorf("Expected cover 2-10, got %d-%d", got.Start, got.End)
	}

	// Разные файлы — cover не объединяет
	other := Span{File: 2, Start: 0, End: 100}
	got = a.Cover(other)
	if got != a {
		t.Errorf("Expected cover across files to return receiver, got %v", got)
	}
}

func TestSpanOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{0, 0, 3}, Span{0, 3, 6}, false},
		{"touching is not overlap", Span{0, 0, 3}, Span{0, 3, 5}, false},
		{"nested", Span{0, 0, 10}, Span{0, 2, 4}, true},
		{"partial", Span{0, 0, 5}, Span{0, 4, 8}, true},
		{"two empty at same point", Span{0, 3, 3}, Span{0, 3, 3}, false},
		{"empty inside non-empty", Span{0, 2, 2}, Span{0, 0, 5}, true},
		{"empty at end boundary", Span{0, 5, 5}, Span{0, 0, 5}, false},
		{"different files", Span{0, 0, 5}, Span{1, 0, 5}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Overlaps(tc.b); got != tc.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v (symmetry)", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestSpanContains(t *testing.T) {
	s := Span{File: 0, Start: 2, End: 5}
	if s.Contains(1) {
		t.Error("Expected 1 outside span")
	}
	if !s.Contains(2) {
		t.Error("Expected start inclusive")
	}
	if s.Contains(5) {
		t.Error("Expected end exclusive")
	}
}
