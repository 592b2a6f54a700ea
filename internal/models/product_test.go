package models

import "testing"

func TestProduct_ID(t *testing.T) {
	tests := []struct {
		name string
		p    Product
		want int64
		ok   bool
	}{
		{"int64", Product{"id": int64(12)}, 12, true},
		{"float from json", Product{"id": float64(7)}, 7, true},
		{"string", Product{"id": "31"}, 31, true},
		{"bytes", Product{"id": []byte("5")}, 5, true},
		{"missing", Product{}, 0, false},
		{"fractional", Product{"id": 1.5}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.p.ID()
			if ok != tt.ok || got != tt.want {
				t.Errorf("ID() = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestProduct_Text(t *testing.T) {
	p := Product{"name": "Canvas Tote", "description": "Sturdy bag"}
	if got := p.Text(); got != "Canvas Tote Sturdy bag" {
		t.Errorf("Text() = %q", got)
	}
	if got := (Product{"name": "Only name", "description": nil}).Text(); got != "Only name" {
		t.Errorf("Text() = %q", got)
	}
}

func TestProduct_ImageURLs(t *testing.T) {
	tests := []struct {
		name string
		p    Product
		want int
	}{
		{"json string", Product{"image_urls": `["https://a/1.jpg", "https://a/2.jpg"]`}, 2},
		{"list", Product{"image_urls": []any{"https://a/1.jpg", 3}}, 1},
		{"malformed", Product{"image_urls": "not json"}, 0},
		{"empty entries", Product{"image_urls": `["", " "]`}, 0},
		{"null", Product{"image_urls": nil}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.ImageURLs(); len(got) != tt.want {
				t.Errorf("ImageURLs() = %v, want %d urls", got, tt.want)
			}
		})
	}
}

func TestProduct_IsDeleted(t *testing.T) {
	tests := []struct {
		name string
		p    Product
		want bool
	}{
		{"live", Product{"id": int64(1)}, false},
		{"deleted_at null", Product{"deleted_at": nil}, false},
		{"deleted_at empty", Product{"deleted_at": ""}, false},
		{"deleted_at set", Product{"deleted_at": "2024-01-02 10:00:00"}, true},
		{"is_deleted 1", Product{"is_deleted": int64(1)}, true},
		{"is_deleted 0", Product{"is_deleted": int64(0)}, false},
		{"deleted true", Product{"deleted": true}, true},
		{"deleted string false", Product{"deleted": "false"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.IsDeleted(); got != tt.want {
				t.Errorf("IsDeleted() = %v, want %v", got, tt.want)
			}
		})
	}
}
