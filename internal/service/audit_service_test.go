package service

import "testing"

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name                  string
		page, perPage         int
		wantPage, wantPerPage int
	}{
		{"defaults", 0, 0, 1, 20},
		{"negative", -3, -1, 1, 20},
		{"passthrough", 4, 50, 4, 50},
		{"capped", 2, 500, 2, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, perPage := normalizePage(tt.page, tt.perPage)
			if page != tt.wantPage || perPage != tt.wantPerPage {
				t.Errorf("normalizePage(%d, %d) = (%d, %d), want (%d, %d)",
					tt.page, tt.perPage, page, perPage, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}
