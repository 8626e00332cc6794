package artwork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/postcard/backend/internal/domain/campaign"
	"go.uber.org/zap"
)

const (
	defaultRenderTimeout = 30 * time.Second
	// bleedInches is added on every edge, as printers require
	bleedInches = 0.125
)

// PDFRenderer renders an HTML document to a PDF of the given size in inches
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string, widthIn, heightIn float64) ([]byte, error)
	Close() error
}

// PageSize returns the printed width and height in inches, bleed included.
// Postcards are printed landscape, so "4x6" is 6 wide by 4 high.
func PageSize(size campaign.MailSize) (width, height float64) {
	switch size {
	case campaign.MailSize4x6:
		width, height = 6, 4
	case campaign.MailSize6x11:
		width, height = 11, 6
	default:
		width, height = 9, 6
	}
	return width + 2*bleedInches, height + 2*bleedInches
}

// ChromedpConfig contains configuration for the chromedp renderer
type ChromedpConfig struct {
	// RemoteURL is a ws:// URL of a running Chrome. Empty launches a local one.
	RemoteURL string
	Timeout   time.Duration
	// NoSandbox is required when running as root in a container
	NoSandbox bool
	Logger    *zap.Logger
}

// ChromedpRenderer renders HTML to PDF through the Chrome DevTools Protocol
type ChromedpRenderer struct {
	config      ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer creates a renderer. Chrome itself is started lazily
// on the first render.
func NewChromedpRenderer(cfg ChromedpConfig) *ChromedpRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRenderTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &ChromedpRenderer{config: cfg, logger: logger}
	if cfg.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return r
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return r
}

// RenderPDF prints html to a single borderless PDF page
func (r *ChromedpRenderer) RenderPDF(ctx context.Context, html string, widthIn, heightIn float64) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("artwork: HTML content is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(r.allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			r.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	// Stop the browser tab when the caller's deadline passes
	go func() {
		<-ctx.Done()
		browserCancel()
	}()

	started := time.Now()
	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, wrapDocument(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(widthIn).
				WithPaperHeight(heightIn).
				WithMarginTop(0).
				WithMarginRight(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithPreferCSSPageSize(false).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("artwork: proof rendering timed out after %v: %w", r.config.Timeout, err)
		}
		return nil, fmt.Errorf("artwork: chromedp execution failed: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("artwork: generated PDF is empty")
	}

	r.logger.Debug("Proof rendered",
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(started)))
	return pdf, nil
}

// Close releases the browser allocator
func (r *ChromedpRenderer) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

// wrapDocument turns an HTML fragment into a full document with zeroed page margins
func wrapDocument(html string) string {
	lower := strings.ToLower(html)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return html
	}
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8">`)
	b.WriteString(`<style>@page{margin:0}html,body{margin:0;padding:0}</style>`)
	b.WriteString(`</head><body>`)
	b.WriteString(html)
	b.WriteString(`</body></html>`)
	return b.String()
}

var _ PDFRenderer = (*ChromedpRenderer)(nil)
