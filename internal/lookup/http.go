package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPFetcher fetches entity metadata as JSON over HTTP and extracts fields
// with gjson paths.
type HTTPFetcher struct {
	Client *http.Client

	// URLTemplate is the request URL; "{id}" is replaced with the escaped
	// token after "/m/".
	URLTemplate string

	// ImageURLTemplate turns the value at ImagePath into a URL the same way.
	// When empty the value at ImagePath is used as is.
	ImageURLTemplate string

	TitlePath       string
	DescriptionPath string
	ImagePath       string
}

// NewTopicFetcher returns a fetcher for topic documents shaped like
//
//	{"property": {"/type/object/name": {"values": [{"text": "..."}]}, ...}}
//
// served under baseURL.
func NewTopicFetcher(baseURL string) *HTTPFetcher {
	base := strings.TrimRight(baseURL, "/")
	return &HTTPFetcher{
		Client:           &http.Client{Timeout: 10 * time.Second},
		URLTemplate:      base + "/v1/topic/m/{id}?filter=/common/topic/description&filter=/common/topic/image&filter=/type/object/name&limit=1",
		ImageURLTemplate: base + "/v1/image/m/{id}",
		TitlePath:        `property./type/object/name.values.0.text`,
		DescriptionPath:  `property./common/topic/description.values.0.text`,
		ImagePath:        `property./common/topic/image.values.0.id`,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, id string) (Result, error) {
	if !ValidID(id) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, expand(f.URLTemplate, id), nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request for %s: %w", id, err)
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response for %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch %s: unexpected status %d: %s", id, resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return Result{}, fmt.Errorf("fetch %s: response is not valid JSON", id)
	}

	return f.parse(body), nil
}

func (f *HTTPFetcher) parse(body []byte) Result {
	fields := gjson.GetManyBytes(body, f.TitlePath, f.DescriptionPath, f.ImagePath)
	result := Result{
		Title:       fields[0].String(),
		Description: fields[1].String(),
	}

	image := fields[2].String()
	switch {
	case image == "":
	case f.ImageURLTemplate != "" && ValidID(image):
		result.ImageURI = expand(f.ImageURLTemplate, image)
	default:
		result.ImageURI = image
	}
	if rest, ok := strings.CutPrefix(result.ImageURI, "http://"); ok {
		result.ImageURI = "https://" + rest
	}
	return result
}

func expand(template, id string) string {
	return strings.ReplaceAll(template, "{id}", url.PathEscape(strings.TrimPrefix(id, "/m/")))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
