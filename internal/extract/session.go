package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
)

const stravaWebURL = "https://www.strava.com"

// Credentials is the web login for the Source.
type Credentials struct {
	Email    string
	Password string
}

// Timeouts bounds each kind of wait.
type Timeouts struct {
	Cookie   time.Duration
	Element  time.Duration
	Login    time.Duration
	Download time.Duration
	// Pause is the gap between two exports.
	Pause time.Duration
}

// Options configures a [Session].
type Options struct {
	BaseURL        string
	Credentials    Credentials
	Selectors      Selectors
	Timeouts       Timeouts
	KeyDelayMin    time.Duration
	KeyDelayMax    time.Duration
	ScreenshotsDir string
	UserAgent      string
	ExecPath       string
	Width          int
	Height         int
}

// OptionsFromConfig builds session options from the browser and Strava config sections.
func OptionsFromConfig(b shared.BrowserConfig, creds shared.StravaConfig) (Options, error) {
	selectors, err := DefaultSelectors().WithOverrides(b.Selectors)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	return Options{
		Credentials: Credentials{Email: creds.Username, Password: creds.Password},
		Selectors:   selectors,
		Timeouts: Timeouts{
			Cookie:   b.CookieTimeout(),
			Element:  b.ElementTimeout(),
			Login:    b.LoginTimeout(),
			Download: b.DownloadTimeout(),
			Pause:    b.DownloadPause(),
		},
		KeyDelayMin:    time.Duration(b.KeyDelayMinMS) * time.Millisecond,
		KeyDelayMax:    time.Duration(b.KeyDelayMaxMS) * time.Millisecond,
		ScreenshotsDir: b.ScreenshotsDir,
		UserAgent:      b.UserAgent,
		ExecPath:       b.ExecPath,
		Width:          b.ViewportWidth,
		Height:         b.ViewportHeight,
	}, nil
}

// Request is one batch export.
type Request struct {
	Dir      string
	Headless bool
}

// Session exports activity files through one logged-in browser.
type Session struct {
	launcher Launcher
	opts     Options
	logger   *log.Logger
	pacer    *pacer
	sleep    func(context.Context, time.Duration) error

	mu      sync.Mutex
	state   State
	history []State
	shots   int
}

// NewSession creates a session. It does not start a browser until [Session.Extract].
func NewSession(launcher Launcher, opts Options, logger *log.Logger) *Session {
	if opts.BaseURL == "" {
		opts.BaseURL = stravaWebURL
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Session{
		launcher: launcher,
		opts:     opts,
		logger:   shared.WithLogger(logger, "component", "extract"),
		pacer:    newPacer(opts.KeyDelayMin, opts.KeyDelayMax),
		sleep:    sleepContext,
		state:    StateStart,
		history:  []State{StateStart},
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state the session has entered, in order.
func (s *Session) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

func (s *Session) transition(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.history = append(s.history, next)
	s.mu.Unlock()
	s.logger.Debug("session transition", "from", prev, "to", next)
}

// Extract logs in and exports one file per activity into req.Dir.
//
// The result has the same length and order as activities; a nil entry means that export failed.
// A login failure returns a [StepError] and no artifacts.
func (s *Session) Extract(ctx context.Context, activities []models.Activity, req Request) ([]*models.Artifact, error) {
	if s.opts.Credentials.Email == "" || s.opts.Credentials.Password == "" {
		return nil, fmt.Errorf("%w: strava username and password are required for export", shared.ErrMissingCredentials)
	}
	if len(activities) == 0 {
		return []*models.Artifact{}, nil
	}

	driver, err := s.launcher.Launch(ctx, LaunchOptions{
		Headless:    req.Headless,
		ExecPath:    s.opts.ExecPath,
		UserAgent:   s.opts.UserAgent,
		Width:       s.opts.Width,
		Height:      s.opts.Height,
		DownloadDir: req.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to launch browser: %v", shared.ErrExtraction, err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			s.logger.Warn("failed to close browser", "error", err)
		}
		s.transition(StateClosed)
	}()

	if err := s.login(ctx, driver); err != nil {
		s.logger.Error("login failed, skipping every export", "state", s.State(), "error", err)
		return nil, err
	}

	artifacts := make([]*models.Artifact, len(activities))
	for i, activity := range activities {
		if ctx.Err() != nil {
			s.logger.Warn("export interrupted", "remaining", len(activities)-i, "error", ctx.Err())
			break
		}
		if i > 0 {
			if err := s.sleep(ctx, s.opts.Timeouts.Pause); err != nil {
				break
			}
		}

		artifact, err := s.extractOne(ctx, driver, activity)
		if err != nil {
			var ie *ItemError
			stage := "export"
			if errors.As(err, &ie) {
				stage = ie.Stage
			}
			s.logger.Error("export failed", "activity", activity.ID, "stage", stage, "error", err)
			s.screenshot(ctx, driver, "failed-"+activity.ID)
			continue
		}

		s.logger.Info("exported activity", "activity", activity.ID, "file", filepath.Base(artifact.Path), "bytes", artifact.Size)
		artifacts[i] = artifact
	}

	return artifacts, nil
}

// login walks the session from Start to Authenticated.
func (s *Session) login(ctx context.Context, d Driver) error {
	sel := s.opts.Selectors
	t := s.opts.Timeouts

	if err := s.step(ctx, d, StateCookieConsentHandled, t.Element, func(ctx context.Context) error {
		if err := d.Navigate(ctx, s.opts.BaseURL+"/login"); err != nil {
			return err
		}
		s.dismissCookies(ctx, d)
		return ctx.Err()
	}); err != nil {
		return err
	}

	if err := s.step(ctx, d, StateCredentialEntered, t.Element, func(ctx context.Context) error {
		if err := d.WaitVisible(ctx, sel.Email); err != nil {
			return err
		}
		if err := s.typeText(ctx, d, sel.Email, s.opts.Credentials.Email); err != nil {
			return err
		}
		return d.Click(ctx, sel.EmailSubmit)
	}); err != nil {
		return err
	}

	// Strava may offer a one-time code first; prefer the password form when it does.
	var challenged bool
	if err := s.run(ctx, d, StateChallengeResolved, t.Login, func(ctx context.Context) error {
		idx, err := d.WaitAny(ctx, sel.UsePassword, sel.Password)
		if err != nil {
			return err
		}
		if idx == 0 {
			challenged = true
			return d.Click(ctx, sel.UsePassword)
		}
		return nil
	}); err != nil {
		return err
	}
	if challenged {
		s.enter(ctx, d, StateChallengeResolved)
	} else {
		s.logger.Debug("no code prompt, password form shown directly")
	}

	if err := s.step(ctx, d, StatePasswordEntered, t.Element, func(ctx context.Context) error {
		if err := d.WaitVisible(ctx, sel.Password); err != nil {
			return err
		}
		if err := s.typeText(ctx, d, sel.Password, s.opts.Credentials.Password); err != nil {
			return err
		}
		return d.Click(ctx, sel.PasswordSubmit)
	}); err != nil {
		return err
	}

	return s.step(ctx, d, StateAuthenticated, t.Login, func(ctx context.Context) error {
		return d.WaitURL(ctx, sel.DashboardURL)
	})
}

// step runs fn under timeout and moves to target when it succeeds.
func (s *Session) step(ctx context.Context, d Driver, target State, timeout time.Duration, fn func(context.Context) error) error {
	if err := s.run(ctx, d, target, timeout, fn); err != nil {
		return err
	}
	s.enter(ctx, d, target)
	return nil
}

// run executes fn under timeout, turning a failure into a [StepError] toward target.
func (s *Session) run(ctx context.Context, d Driver, target State, timeout time.Duration, fn func(context.Context) error) error {
	from := s.State()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := fn(sctx); err != nil {
		s.screenshot(ctx, d, "failed-"+target.String())
		return &StepError{From: from, Target: target, Err: err}
	}
	return nil
}

func (s *Session) enter(ctx context.Context, d Driver, target State) {
	s.transition(target)
	s.screenshot(ctx, d, target.String())
}

// dismissCookies clicks the consent button if one shows up in time. Its absence is not an error.
func (s *Session) dismissCookies(ctx context.Context, d Driver) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeouts.Cookie)
	defer cancel()

	if _, err := d.WaitAny(cctx, s.opts.Selectors.CookieAccept); err != nil {
		s.logger.Debug("no cookie prompt", "error", err)
		return
	}
	if err := d.Click(cctx, s.opts.Selectors.CookieAccept); err != nil {
		s.logger.Warn("cookie prompt visible but click failed", "error", err)
		return
	}
	s.logger.Debug("cookie prompt dismissed")
}

// typeText sends text one character at a time with randomized gaps.
func (s *Session) typeText(ctx context.Context, d Driver, selector, text string) error {
	for _, r := range text {
		if err := d.SendKeys(ctx, selector, string(r)); err != nil {
			return err
		}
		if err := s.pacer.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// extractOne exports a single activity, returning to Authenticated whatever the outcome.
func (s *Session) extractOne(ctx context.Context, d Driver, a models.Activity) (*models.Artifact, error) {
	s.transition(StateExtracting)
	defer s.transition(StateAuthenticated)

	sel := s.opts.Selectors
	t := s.opts.Timeouts

	nctx, cancel := context.WithTimeout(ctx, t.Element)
	defer cancel()
	if err := d.Navigate(nctx, fmt.Sprintf("%s/activities/%s", s.opts.BaseURL, a.ID)); err != nil {
		return nil, &ItemError{ActivityID: a.ID, Stage: "navigate", Err: err}
	}
	if err := d.WaitVisible(nctx, sel.ExportMenu); err != nil {
		return nil, &ItemError{ActivityID: a.ID, Stage: "open_menu", Err: err}
	}
	if err := d.Click(nctx, sel.ExportMenu); err != nil {
		return nil, &ItemError{ActivityID: a.ID, Stage: "open_menu", Err: err}
	}

	dctx, dcancel := context.WithTimeout(ctx, t.Download)
	defer dcancel()
	link := sel.ExportLinkFor(a.ID)
	path, err := d.Download(dctx, func(ctx context.Context) error {
		if err := d.WaitVisible(ctx, link); err != nil {
			return err
		}
		return d.Click(ctx, link)
	})
	if err != nil {
		return nil, &ItemError{ActivityID: a.ID, Stage: "download", Err: err}
	}

	artifact, err := models.NewArtifact(a.ID, path)
	if err != nil {
		os.Remove(path)
		return nil, &ItemError{ActivityID: a.ID, Stage: "verify", Err: err}
	}
	return artifact, nil
}

// screenshot saves a debug image when a screenshots directory is configured.
func (s *Session) screenshot(ctx context.Context, d Driver, name string) {
	if s.opts.ScreenshotsDir == "" || ctx.Err() != nil {
		return
	}
	if err := os.MkdirAll(s.opts.ScreenshotsDir, 0755); err != nil {
		s.logger.Warn("failed to create screenshots dir", "error", err)
		return
	}

	s.mu.Lock()
	s.shots++
	n := s.shots
	s.mu.Unlock()

	path := filepath.Join(s.opts.ScreenshotsDir, fmt.Sprintf("%02d-%s.png", n, strings.ReplaceAll(name, "/", "_")))
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Screenshot(sctx, path); err != nil {
		s.logger.Debug("screenshot failed", "path", path, "error", err)
		return
	}
	s.logger.Debug("saved screenshot", "path", path)
}
