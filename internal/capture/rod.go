package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/said46/autoSOC/internal/platform/logger"
)

// ErrNoPages is returned when the attached browser has no open page.
var ErrNoPages = errors.New("capture: browser has no open pages")

const defaultCaptureTimeout = 5 * time.Minute

// RodCapturer attaches to a running browser over DevTools and waits for
// the user to save overrides in the SOC application.
type RodCapturer struct {
	controlURL string
	submitPath string
	timeout    time.Duration
	logger     *logger.Logger
}

// RodOption configures a RodCapturer.
type RodOption func(*RodCapturer)

// WithCaptureTimeout bounds how long Capture waits.
func WithCaptureTimeout(d time.Duration) RodOption {
	return func(c *RodCapturer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCaptureLogger sets the logger.
func WithCaptureLogger(l *logger.Logger) RodOption {
	return func(c *RodCapturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRodCapturer constructs a capturer for the browser at controlURL.
func NewRodCapturer(controlURL, submitPath string, opts ...RodOption) (*RodCapturer, error) {
	if strings.TrimSpace(controlURL) == "" {
		return nil, errors.New("capture: control url is required")
	}
	if strings.TrimSpace(submitPath) == "" {
		return nil, errors.New("capture: submit path is required")
	}
	c := &RodCapturer{
		controlURL: controlURL,
		submitPath: submitPath,
		timeout:    defaultCaptureTimeout,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type sighting struct {
	page *rod.Page
	ev   *proto.NetworkRequestWillBeSent
}

// Capture returns the first POST whose URL contains the submit path, seen
// on any page open when Capture starts. The browser is left running.
func (c *RodCapturer) Capture(ctx context.Context) (Captured, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	browser := rod.New().ControlURL(c.controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return Captured{}, fmt.Errorf("capture: connect to chrome: %w", err)
	}

	pages, err := browser.Pages()
	if err != nil {
		return Captured{}, fmt.Errorf("capture: list pages: %w", err)
	}
	if len(pages) == 0 {
		return Captured{}, ErrNoPages
	}

	seen := make(chan sighting, len(pages))
	for _, page := range pages {
		page := page
		if err := (proto.NetworkEnable{}).Call(page); err != nil {
			c.logger.Warn("capture: network enable failed", "error", err)
			continue
		}
		wait := page.Context(ctx).EachEvent(func(ev *proto.NetworkRequestWillBeSent) bool {
			if ev.Request == nil || ev.Request.Method != "POST" || !strings.Contains(ev.Request.URL, c.submitPath) {
				return false
			}
			select {
			case seen <- sighting{page: page, ev: ev}:
			default:
			}
			return true
		})
		go wait()
	}
	c.logger.Info("capture: waiting for submission", "pages", len(pages), "path", c.submitPath)

	select {
	case <-ctx.Done():
		return Captured{}, fmt.Errorf("capture: no submission seen: %w", ctx.Err())
	case s := <-seen:
		body, err := proto.NetworkGetRequestPostData{RequestID: s.ev.RequestID}.Call(s.page)
		if err != nil {
			return Captured{}, fmt.Errorf("capture: read post data: %w", err)
		}
		c.logger.Info("capture: submission captured", "url", s.ev.Request.URL, "bytes", len(body.PostData))
		return Captured{
			URL:        s.ev.Request.URL,
			Method:     s.ev.Request.Method,
			Body:       body.PostData,
			CapturedAt: time.Now().UTC(),
		}, nil
	}
}
