package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// maxFeedSize bounds how much of a response body is read.
const maxFeedSize = 256 << 20

// Response is a raw feed response as returned by a Source.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Source downloads the raw registry feed.
type Source interface {
	URL() string
	Fetch(ctx context.Context) (Response, error)
}

// NewSource picks a Source for rawURL by scheme: http(s), gs or file.
// A URL without a scheme is treated as a local path.
func NewSource(ctx context.Context, rawURL string, client *http.Client) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPSource(rawURL, client), nil
	case "gs":
		return NewGCSSource(ctx, rawURL)
	case "file":
		return NewFileSource(u.Path), nil
	case "":
		return NewFileSource(rawURL), nil
	default:
		return nil, fmt.Errorf("unsupported feed URL scheme %q", u.Scheme)
	}
}

// HTTPSource fetches the feed with a GET request.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) URL() string { return s.url }

func (s *HTTPSource) Fetch(ctx context.Context) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// GCSSource reads the feed object from a public Cloud Storage bucket.
type GCSSource struct {
	url    string
	bucket string
	object string
	svc    *storage.Service
}

// NewGCSSource creates a source for a gs://bucket/object URL. Access is
// anonymous unless client options are given.
func NewGCSSource(ctx context.Context, rawURL string, opts ...option.ClientOption) (*GCSSource, error) {
	bucket, object, err := splitGCSURL(rawURL)
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithoutAuthentication()}
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage service: %w", err)
	}
	return &GCSSource{url: rawURL, bucket: bucket, object: object, svc: svc}, nil
}

func splitGCSURL(rawURL string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(rawURL, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URL: %q", rawURL)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs URL must name a bucket and an object: %q", rawURL)
	}
	return bucket, object, nil
}

func (s *GCSSource) URL() string { return s.url }

func (s *GCSSource) Fetch(ctx context.Context) (Response, error) {
	resp, err := s.svc.Objects.Get(s.bucket, s.object).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return Response{StatusCode: apiErr.Code}, nil
		}
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return Response{}, fmt.Errorf("read object: %w", err)
	}
	return Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// FileSource reads a feed saved on disk, such as the output of
// registryctl fetch.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) URL() string { return "file://" + s.path }

func (s *FileSource) Fetch(ctx context.Context) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	body, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Response{StatusCode: http.StatusNotFound}, nil
	}
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: body}, nil
}
