package service

import (
	"math"
	"testing"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name             string
		page, size       int
		wantPage, wantSz int
	}{
		{"defaults", 0, 0, 1, 10},
		{"negative", -3, -1, 1, 10},
		{"size capped", 2, 500, 2, 100},
		{"page capped", math.MaxInt, 10, maxPage, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size := normalizePage(tt.page, tt.size, 10, 100)
			if page != tt.wantPage || size != tt.wantSz {
				t.Errorf("expected (%d, %d), got (%d, %d)", tt.wantPage, tt.wantSz, page, size)
			}
		})
	}

	// The largest offset must stay well inside int64.
	if skip := int64(maxPage-1) * 100; skip <= 0 {
		t.Fatalf("offset overflowed: %d", skip)
	}
}

func TestTotalPages(t *testing.T) {
	if got := totalPages(25, 10); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := totalPages(0, 10); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
