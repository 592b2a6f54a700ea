package embedding

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(c, 8, 8)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImageFetcher_Fetch(t *testing.T) {
	data := pngBytes(t, color.RGBA{0, 128, 255, 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(data)
		case "/text":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewImageFetcher()
	ctx := context.Background()

	img, err := f.Fetch(ctx, srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("width=%d", img.Bounds().Dx())
	}

	if _, err := f.Fetch(ctx, srv.URL+"/missing.png"); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := f.Fetch(ctx, srv.URL+"/text"); err == nil {
		t.Error("expected decode error")
	}

	small := NewImageFetcher(WithMaxImageBytes(16))
	if _, err := small.Fetch(ctx, srv.URL+"/ok.png"); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("expected ErrImageTooLarge, got %v", err)
	}
}
