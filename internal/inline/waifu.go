// Package inline implements the anime image search behind inline queries,
// backed by the waifu.im public API.
package inline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.waifu.im/images"

type Image struct {
	URL  string
	Tags []string
}

type SearchOptions struct {
	Orientation string // "Portrait", "Landscape", "All" or ""
	NSFW        bool
	Limit       int
}

// ParseArgs extracts search options from free-form inline query text.
func ParseArgs(text string) SearchOptions {
	lower := strings.ToLower(text)
	args := strings.Fields(lower)
	has := func(words ...string) bool {
		for _, w := range words {
			for _, a := range args {
				if a == w {
					return true
				}
			}
		}
		return false
	}

	var opt SearchOptions
	opt.NSFW = strings.Contains(lower, "nsfw")
	switch {
	case has("portrait", "vertical", "v"):
		opt.Orientation = "Portrait"
	case has("landscape", "horizontal", "h"):
		opt.Orientation = "Landscape"
	case has("random"):
		opt.Orientation = "All"
	}
	return opt
}

type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

func NewClient(log zerolog.Logger) *Client {
	return &Client{
		base: defaultBaseURL,
		http: &http.Client{Timeout: 8 * time.Second},
		log:  log,
	}
}

type apiResponse struct {
	Items []struct {
		URL  string `json:"url"`
		Tags []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"items"`
}

// Search fetches up to opt.Limit images. An empty result is not an error.
func (c *Client) Search(ctx context.Context, opt SearchOptions) ([]Image, error) {
	q := url.Values{}
	if opt.Orientation != "" {
		q.Set("Orientation", opt.Orientation)
	}
	q.Set("IsNsfw", strconv.FormatBool(opt.NSFW))
	if opt.Limit > 1 {
		q.Set("PageSize", strconv.Itoa(opt.Limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search: unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("image search decode: %w", err)
	}

	images := make([]Image, 0, len(body.Items))
	for _, it := range body.Items {
		tags := make([]string, 0, len(it.Tags))
		for _, t := range it.Tags {
			tags = append(tags, t.Name)
		}
		images = append(images, Image{URL: it.URL, Tags: tags})
	}
	return images, nil
}
