package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/desertthunder/ridesync/internal/shared"
)

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

var errDownloadCanceled = errors.New("download canceled by browser")

// ChromeLauncher starts Chrome through chromedp.
type ChromeLauncher struct {
	Logger *log.Logger
}

// Launch starts a browser configured like a phone, with downloads routed to opts.DownloadDir.
func (l ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("%w: download directory is required", shared.ErrInvalidArgument)
	}
	logger := l.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithDebugf(logger.Debugf))

	setup := []chromedp.Action{
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(opts.DownloadDir).
			WithEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx)
			return err
		}),
	}
	if opts.Width > 0 && opts.Height > 0 {
		setup = append(setup, emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), 3, true))
	}

	if err := chromedp.Run(browserCtx, setup...); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug("browser started", "headless", opts.Headless, "downloads", opts.DownloadDir)
	return &chromeDriver{
		ctx:    browserCtx,
		dir:    opts.DownloadDir,
		cancel: func() { cancelBrowser(); cancelAlloc() },
	}, nil
}

type chromeDriver struct {
	ctx    context.Context
	dir    string
	cancel func()
	once   sync.Once
}

// run executes actions on the browser tab while honouring the caller's ctx.
func (c *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (c *chromeDriver) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *chromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitAny polls the page for the first visible match among selectors.
func (c *chromeDriver) WaitAny(ctx context.Context, selectors ...string) (int, error) {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = strconv.Quote(s)
	}
	expr := fmt.Sprintf(`(() => {
		const sels = [%s];
		for (let i = 0; i < sels.length; i++) {
			for (const el of document.querySelectorAll(sels[i])) {
				const r = el.getBoundingClientRect();
				if (r.width > 0 && r.height > 0) return i + 1;
			}
		}
		return 0;
	})()`, strings.Join(quoted, ", "))

	var found int
	if err := c.run(ctx, chromedp.Poll(expr, &found, chromedp.WithPollingInterval(100*time.Millisecond))); err != nil {
		return -1, err
	}
	return found - 1, nil
}

func (c *chromeDriver) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (c *chromeDriver) SendKeys(ctx context.Context, selector, keys string) error {
	return c.run(ctx, chromedp.SendKeys(selector, keys, chromedp.ByQuery))
}

func (c *chromeDriver) WaitURL(ctx context.Context, fragment string) error {
	var ok bool
	expr := fmt.Sprintf(`window.location.href.includes(%s)`, strconv.Quote(fragment))
	return c.run(ctx, chromedp.Poll(expr, &ok, chromedp.WithPollingInterval(250*time.Millisecond)))
}

type downloadDone struct {
	guid string
	err  error
}

// Download listens for the browser's download events around trigger and renames the finished
// GUID-named file to the name the site suggested.
func (c *chromeDriver) Download(ctx context.Context, trigger func(context.Context) error) (string, error) {
	var names sync.Map
	done := make(chan downloadDone, 1)
	finish := func(d downloadDone) {
		select {
		case done <- d:
		default:
		}
	}

	lctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	chromedp.ListenTarget(lctx, func(ev any) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			names.Store(e.GUID, e.SuggestedFilename)
		case *browser.EventDownloadProgress:
			switch e.State {
			case browser.DownloadProgressStateCompleted:
				finish(downloadDone{guid: e.GUID})
			case browser.DownloadProgressStateCanceled:
				finish(downloadDone{guid: e.GUID, err: errDownloadCanceled})
			}
		}
	})

	if err := trigger(ctx); err != nil {
		return "", err
	}

	select {
	case d := <-done:
		if d.err != nil {
			return "", d.err
		}
		suggested, _ := names.Load(d.guid)
		name, _ := suggested.(string)
		return c.finalize(d.guid, name)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *chromeDriver) finalize(guid, suggested string) (string, error) {
	src := filepath.Join(c.dir, guid)
	name := filepath.Base(strings.TrimSpace(suggested))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = guid + ".fit"
	}

	dst := filepath.Join(c.dir, name)
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(c.dir, guid+"-"+name)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("failed to move download: %w", err)
	}
	return dst, nil
}

func (c *chromeDriver) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

func (c *chromeDriver) Close() error {
	c.once.Do(c.cancel)
	return nil
}
