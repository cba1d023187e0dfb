package inline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want SearchOptions
	}{
		{"empty", "", SearchOptions{}},
		{"portrait", "portrait", SearchOptions{Orientation: "Portrait"}},
		{"vertical alias", "vertical", SearchOptions{Orientation: "Portrait"}},
		{"short vertical", "v", SearchOptions{Orientation: "Portrait"}},
		{"landscape", "landscape", SearchOptions{Orientation: "Landscape"}},
		{"short horizontal", "h", SearchOptions{Orientation: "Landscape"}},
		{"random", "random", SearchOptions{Orientation: "All"}},
		{"nsfw flag", "nsfw", SearchOptions{NSFW: true}},
		{"nsfw with orientation", "portrait nsfw", SearchOptions{Orientation: "Portrait", NSFW: true}},
		{"case insensitive", "PORTRAIT NSFW", SearchOptions{Orientation: "Portrait", NSFW: true}},
		{"portrait wins over landscape", "portrait landscape", SearchOptions{Orientation: "Portrait"}},
		{"letters inside words ignored", "very happy", SearchOptions{}},
		{"unknown words", "cute catgirl", SearchOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseArgs(tt.text); got != tt.want {
				t.Errorf("ParseArgs(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("Orientation"); got != "Portrait" {
			t.Errorf("Orientation = %q, want Portrait", got)
		}
		if got := q.Get("IsNsfw"); got != "false" {
			t.Errorf("IsNsfw = %q, want false", got)
		}
		if got := q.Get("PageSize"); got != "5" {
			t.Errorf("PageSize = %q, want 5", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"url": "https://img.example/1.png", "tags": []map[string]string{{"name": "waifu"}, {"name": "maid"}}},
				{"url": "https://img.example/2.png", "tags": []map[string]string{}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop())
	c.base = srv.URL

	images, err := c.Search(context.Background(), SearchOptions{Orientation: "Portrait", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
	if images[0].URL != "https://img.example/1.png" {
		t.Errorf("url = %q", images[0].URL)
	}
	if len(images[0].Tags) != 2 || images[0].Tags[0] != "waifu" {
		t.Errorf("tags = %v", images[0].Tags)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop())
	c.base = srv.URL

	if _, err := c.Search(context.Background(), SearchOptions{}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
