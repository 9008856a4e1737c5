package soc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/platform/logger"
)

// maxBodyBytes bounds how much of a response body is kept.
const maxBodyBytes = 1 << 20

// Paths are the SOC endpoints relative to the base url.
type Paths struct {
	Methods   string
	States    string
	Submit    string
	Overrides string
}

// DefaultPaths returns the endpoints of the stock SOC application.
func DefaultPaths() Paths {
	return Paths{
		Methods:   "/SOC/GetOverrideMethodsByType",
		States:    "/SOC/GetOverrideStatesByMethod",
		Submit:    "/Soc/SaveOverrides",
		Overrides: "/Soc/ReadOverrides",
	}
}

// Credential is the opaque session material supplied by the caller.
type Credential struct {
	SessionCookie string
	RequestToken  string
}

// Client is a minimal SOC web client: catalog reads and override submission.
type Client struct {
	baseURL     string
	paths       Paths
	client      *http.Client
	types       []overrides.OverrideType
	catalogCred Credential
	emptyAsNull bool
	logger      *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithPaths overrides endpoint paths; empty fields keep their default.
func WithPaths(p Paths) Option {
	return func(c *Client) {
		if p.Methods != "" {
			c.paths.Methods = p.Methods
		}
		if p.States != "" {
			c.paths.States = p.States
		}
		if p.Submit != "" {
			c.paths.Submit = p.Submit
		}
		if p.Overrides != "" {
			c.paths.Overrides = p.Overrides
		}
	}
}

// WithTypes sets the override types served by Types.
func WithTypes(types []overrides.OverrideType) Option {
	return func(c *Client) {
		c.types = append([]overrides.OverrideType(nil), types...)
	}
}

// WithCatalogCredential authenticates catalog reads.
func WithCatalogCredential(cred Credential) Option {
	return func(c *Client) { c.catalogCred = cred }
}

// WithEmptyOptionalAsNull selects null (true) or "" (false) for empty
// optional record fields.
func WithEmptyOptionalAsNull(asNull bool) Option {
	return func(c *Client) { c.emptyAsNull = asNull }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient constructs a SOC client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("soc: empty base url")
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		paths:       DefaultPaths(),
		client:      &http.Client{Timeout: 10 * time.Second},
		types:       overrides.DefaultTypes(),
		emptyAsNull: true,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base url.
func (c *Client) BaseURL() string { return c.baseURL }

// SubmitURL returns the absolute submission endpoint.
func (c *Client) SubmitURL() string { return c.endpoint(c.paths.Submit) }

func (c *Client) endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

var errNotFound = errors.New("soc: not found")

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, cred Credential, out any) error {
	target := c.endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	applyCredential(req, cred)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("soc: http %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
}

func applyCredential(req *http.Request, cred Credential) {
	if cred.SessionCookie != "" {
		req.Header.Set("Cookie", cred.SessionCookie)
	}
}
