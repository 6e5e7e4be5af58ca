// Package books queries the Google Books volumes API and normalizes results
// into the catalog schema.
package books

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"readquest/pkg/apperr"
	"readquest/pkg/domain"
)

const (
	defaultBaseURL = "https://www.googleapis.com/books/v1"
	maxResults     = 10
)

// Client searches the book metadata provider. The API key is optional; the
// provider serves unauthenticated requests at a lower quota.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	group      singleflight.Group
}

// NewClient builds a search client. baseURL defaults to the public Google
// Books endpoint when empty.
func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Search returns normalized results for query. An empty query is rejected
// before any network call. Concurrent identical queries are collapsed into a
// single upstream request.
func (c *Client) Search(ctx context.Context, query string) ([]domain.BookResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "search query is required")
	}
	v, err, _ := c.group.Do(query, func() (any, error) {
		return c.search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.BookResult), nil
}

func (c *Client) search(ctx context.Context, query string) ([]domain.BookResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "book search request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apperr.Newf(apperr.KindUpstreamUnavailable, "book search api error: %s", resp.Status)
	}

	var payload volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedResponse, "decode book search response", err)
	}

	results := make([]domain.BookResult, 0, len(payload.Items))
	for _, item := range payload.Items {
		results = append(results, normalize(item))
	}
	return results, nil
}

// normalize applies documented defaults for every field the provider may
// omit: missing title becomes "Untitled", missing authors an empty sequence,
// missing description and thumbnail empty strings.
func normalize(item volumeItem) domain.BookResult {
	title := item.VolumeInfo.Title
	if title == "" {
		title = "Untitled"
	}
	authors := item.VolumeInfo.Authors
	if authors == nil {
		authors = []string{}
	}
	return domain.BookResult{
		ID:           item.ID,
		GoogleID:     item.ID,
		Title:        title,
		Authors:      authors,
		Description:  item.VolumeInfo.Description,
		ThumbnailURI: item.VolumeInfo.ImageLinks.Thumbnail,
		PreviewLink:  item.VolumeInfo.PreviewLink,
	}
}

// Provider response types (subset of the volumes API).

type volumesResponse struct {
	Items []volumeItem `json:"items"`
}

type volumeItem struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title       string   `json:"title"`
		Authors     []string `json:"authors"`
		Description string   `json:"description"`
		ImageLinks  struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
		PreviewLink string `json:"previewLink"`
	} `json:"volumeInfo"`
}
