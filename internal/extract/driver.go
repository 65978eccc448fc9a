package extract

import "context"

// Driver is the browser surface the session needs. Every blocking call honours ctx's deadline.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	// WaitAny blocks until one of the selectors is visible and returns its index.
	WaitAny(ctx context.Context, selectors ...string) (int, error)
	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, keys string) error
	// WaitURL blocks until the current URL contains fragment.
	WaitURL(ctx context.Context, fragment string) error
	// Download runs trigger and waits for the download it starts, returning the saved file path.
	Download(ctx context.Context, trigger func(context.Context) error) (string, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// LaunchOptions configures a new browser.
type LaunchOptions struct {
	Headless    bool
	ExecPath    string
	UserAgent   string
	Width       int
	Height      int
	DownloadDir string
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
}

// LauncherFunc adapts a function to [Launcher].
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Driver, error)

func (f LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	return f(ctx, opts)
}
