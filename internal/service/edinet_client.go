package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/model"
)

const (
	defaultUserAgent = "edinet-fetch/1.0"
	maxErrorBody     = 4096
)

// ListingDetail selects the variant of /documents.json
type ListingDetail int

const (
	// ListingMetadataOnly returns only the count block
	ListingMetadataOnly ListingDetail = 1
	// ListingWithResults returns the count block and every document
	ListingWithResults ListingDetail = 2
)

// TransportError reports a failed registry request: a network error, a
// non-success HTTP status, or an error payload in a success response.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// EDINETClient handles communication with the EDINET registry API
type EDINETClient struct {
	endpoint  string
	apiKey    string
	userAgent string
	client    *http.Client
}

// ClientOption customises an EDINETClient
type ClientOption func(*EDINETClient)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(e *EDINETClient) {
		e.client = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) ClientOption {
	return func(e *EDINETClient) {
		e.userAgent = ua
	}
}

// NewEDINETClient creates a new registry client from the loaded configuration
func NewEDINETClient(cfg *config.Config, opts ...ClientOption) *EDINETClient {
	c := &EDINETClient{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:    cfg.APIKey,
		userAgent: defaultUserAgent,
		client:    &http.Client{Timeout: cfg.HTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListDay retrieves the listing for a single calendar day
func (c *EDINETClient) ListDay(ctx context.Context, date time.Time, detail ListingDetail) (*model.Listing, error) {
	q := url.Values{}
	q.Set("date", date.Format(config.DateLayout))
	q.Set("type", strconv.Itoa(int(detail)))
	u := c.buildURL("/documents.json", q)

	resp, err := c.get(ctx, "list", u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "list", URL: c.redact(u), Err: err}
	}

	var listing model.Listing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse listing for %s: %w", date.Format(config.DateLayout), err)
	}

	// The registry reports some failures in the payload of a 200 response
	if listing.Metadata.Status != "" && listing.Metadata.Status != "200" {
		code, _ := strconv.Atoi(listing.Metadata.Status)
		return nil, &TransportError{
			Op:         "list",
			URL:        c.redact(u),
			StatusCode: code,
			Message:    listing.Metadata.Message,
		}
	}

	return &listing, nil
}

// FetchArtifact opens the byte stream of one artifact. The caller closes it.
func (c *EDINETClient) FetchArtifact(ctx context.Context, docID string, kind model.ArtifactKind) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("type", strconv.Itoa(int(kind)))
	u := c.buildURL("/documents/"+url.PathEscape(docID), q)

	resp, err := c.get(ctx, "fetch "+kind.String(), u)
	if err != nil {
		return nil, err
	}

	// Missing documents come back as a JSON error document with status 200
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "application/json" {
		defer resp.Body.Close()
		return nil, &TransportError{
			Op:         "fetch " + kind.String(),
			URL:        c.redact(u),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	return resp.Body, nil
}

// get performs one GET and turns any non-2xx status into a TransportError
func (c *EDINETClient) get(ctx context.Context, op, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: c.redact(u), Err: stripURLError(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &TransportError{
			Op:         op,
			URL:        c.redact(u),
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	return resp, nil
}

func (c *EDINETClient) buildURL(path string, q url.Values) string {
	q.Set("Subscription-Key", c.apiKey)
	return c.endpoint + path + "?" + q.Encode()
}

// redact hides the subscription key in URLs that end up in errors and logs
func (c *EDINETClient) redact(u string) string {
	if c.apiKey == "" {
		return u
	}
	return strings.ReplaceAll(u, url.QueryEscape(c.apiKey), "REDACTED")
}

// stripURLError drops the *url.Error wrapper, which repeats the full URL
func stripURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// errorMessage extracts a human-readable message from a registry error body
func errorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload struct {
		Message  string `json:"message"`
		Metadata struct {
			Message string `json:"message"`
		} `json:"metadata"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Metadata.Message != "" {
			return payload.Metadata.Message
		}
	}
	return strings.TrimSpace(string(body))
}
