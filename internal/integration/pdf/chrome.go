package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 in inches, the unit DevTools expects.
const (
	a4Width  = 210 / 25.4
	a4Height = 297 / 25.4
)

// ChromeConfig selects the browser. An empty RemoteURL launches a local
// headless Chrome.
type ChromeConfig struct {
	RemoteURL string
	Timeout   time.Duration
	NoSandbox bool
}

// ChromeRenderer prints HTML through headless Chrome.
type ChromeRenderer struct {
	cfg         ChromeConfig
	log         *slog.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeRenderer prepares the browser allocator. The browser itself is
// started lazily on first render.
func NewChromeRenderer(cfg ChromeConfig, log *slog.Logger) *ChromeRenderer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	r := &ChromeRenderer{cfg: cfg, log: log}
	if cfg.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
		return r
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return r
}

// Render prints html to an A4 PDF.
func (r *ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("pdf: empty document")
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	tabCtx, tabCancel := chromedp.NewContext(r.allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		r.log.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
	}))
	defer tabCancel()
	// Tie the tab to the request deadline.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var out []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithPreferCSSPageSize(true).
				Do(ctx)
			out = data
			return err
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdf: render timed out after %s: %w", r.cfg.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("pdf: chrome: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("pdf: chrome returned an empty document")
	}
	return out, nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}
