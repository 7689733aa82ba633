// Package session drives the authenticated browser session: login,
// step-up verification, bookmark capture, logout and teardown. The
// upstream service provides no typed error for login outcomes, only a
// redirect target, so outcomes are classified by the resulting page
// location. The machine is the sole writer of its own state and emits
// categorical lifecycle signals through an injected events.Emitter.
//
// The machine is not safe for concurrent use; callers drive it from a
// single goroutine.
package session

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"xbookmarks/pkg/bookmarks"
	"xbookmarks/pkg/config"
	xerrors "xbookmarks/pkg/errors"
	"xbookmarks/pkg/events"
	"xbookmarks/pkg/logger"
	"xbookmarks/pkg/timeline"
)

// State is the session lifecycle state
type State int

const (
	// StateInactive is the only state before a browser session is
	// attached; it is unreachable again afterward except by teardown.
	StateInactive State = iota
	StateLoggedOut
	StateNeedsConfirmationCode
	StateNeeds2FACode
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateLoggedOut:
		return "logged_out"
	case StateNeedsConfirmationCode:
		return "needs_confirmation_code"
	case StateNeeds2FACode:
		return "needs_2fa_code"
	case StateLoggedIn:
		return "logged_in"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Credentials are the login form inputs
type Credentials struct {
	Username string
	Password string
}

// ErrLogoutIncomplete reports that the page still looks logged in after
// driving logout. It is surfaced as a distinct condition instead of
// being swallowed, so the orchestrator can decide whether to treat it
// as fatal.
var ErrLogoutIncomplete = fmt.Errorf("still on a logged-in page after logout")

// Login form selectors for the upstream web frontend
const (
	selectorUsernameInput = `input[autocomplete="username"]`
	selectorPasswordInput = `input[name="password"]`
	selectorNextButton    = `div[data-testid="LoginForm_Forward_Button"]`
	selectorLoginButton   = `div[data-testid="LoginForm_Login_Button"]`
	selectorCodeInput     = `input[data-testid="ocfEnterTextTextInput"]`
	selectorCodeSubmit    = `div[data-testid="ocfEnterTextNextButton"]`
	selectorLogoutConfirm = `div[data-testid="confirmationSheetConfirm"]`
)

// Machine is the session state machine. It exclusively owns the driven
// browser session; no other component mutates it.
type Machine struct {
	cfg      *config.BrowserConfig
	registry *Registry
	emitter  *events.Emitter
	logger   logger.Logger

	state   State
	browser BrowserSession
	page    Page

	lastAuthAttemptFailed bool
	lastCodeAttemptFailed bool

	requester *bookmarks.Requester
}

// NewMachine creates a machine in the Inactive state
func NewMachine(cfg *config.BrowserConfig, registry *Registry, emitter *events.Emitter, log logger.Logger) *Machine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Machine{
		cfg:      cfg,
		registry: registry,
		emitter:  emitter,
		logger:   log,
		state:    StateInactive,
	}
}

// State returns the current lifecycle state
func (m *Machine) State() State {
	return m.state
}

// LastAuthAttemptFailed reports whether the most recent login attempt
// was judged incorrect.
func (m *Machine) LastAuthAttemptFailed() bool {
	return m.lastAuthAttemptFailed
}

// LastCodeAttemptFailed reports whether the most recent step-up code
// submission was judged wrong.
func (m *Machine) LastCodeAttemptFailed() bool {
	return m.lastCodeAttemptFailed
}

// Requester returns the armed bookmark requester, or nil before a
// successful StartFetchingBookmarks.
func (m *Machine) Requester() *bookmarks.Requester {
	return m.requester
}

// AttachSession resolves the named driver and launches a driven browser
// session. On success the machine moves to LoggedOut and signals
// readiness; an unrecognized driver name leaves the state unchanged.
func (m *Machine) AttachSession(ctx context.Context, driverName string) error {
	if m.browser != nil {
		m.emitter.InternalError("a browser session is already attached")
		return xerrors.Internal("a browser session is already attached")
	}

	driver, ok := m.registry.Resolve(driverName)
	if !ok {
		msg := fmt.Sprintf("unsupported driver %q (available: %s)", driverName, strings.Join(m.registry.Names(), ", "))
		m.emitter.UserError(msg)
		return xerrors.User(msg)
	}

	browser, err := driver.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch %s: %w", driverName, err)
	}
	page, err := browser.NewPage(ctx)
	if err != nil {
		browser.Close(ctx)
		return fmt.Errorf("open page: %w", err)
	}

	m.browser = browser
	m.page = page
	m.state = StateLoggedOut
	m.logger.InfoWithFields("Browser session attached", map[string]interface{}{
		"driver": driverName,
	})
	m.emitter.Success()
	return nil
}

// LogIn drives the login form and classifies the resulting page
// location into one of four outcomes: logged in, confirmation code
// required, two-factor code required, or incorrect credentials.
func (m *Machine) LogIn(ctx context.Context, creds Credentials) error {
	if m.browser == nil {
		m.emitter.InternalError("cannot log in before a browser session is attached")
		return xerrors.Internal("cannot log in before a browser session is attached")
	}

	if err := m.page.Goto(ctx, m.cfg.BaseURL+m.cfg.LoginPath); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}
	if err := m.page.Type(ctx, selectorUsernameInput, creds.Username); err != nil {
		return fmt.Errorf("enter username: %w", err)
	}
	if err := m.page.Click(ctx, selectorNextButton); err != nil {
		return fmt.Errorf("advance login form: %w", err)
	}
	if err := m.page.Type(ctx, selectorPasswordInput, creds.Password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	if err := m.page.Click(ctx, selectorLoginButton); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	location := m.page.URL()
	m.logger.DebugWithFields("Classifying post-login location", map[string]interface{}{
		"location": location,
	})

	switch {
	case strings.Contains(location, m.cfg.HomePattern):
		m.state = StateLoggedIn
		m.lastAuthAttemptFailed = false
		m.logger.Info("Logged in")
		m.emitter.Success()
	case strings.Contains(location, m.cfg.ConfirmationPattern):
		m.state = StateNeedsConfirmationCode
		m.emitter.ActionRequired("a confirmation code was sent to you; submit it to continue")
	case strings.Contains(location, m.cfg.TwoFactorPattern):
		m.state = StateNeeds2FACode
		m.emitter.ActionRequired("enter your two-factor authentication code to continue")
	default:
		m.state = StateLoggedOut
		m.lastAuthAttemptFailed = true
		m.logger.WarnWithFields("Login judged incorrect", map[string]interface{}{
			"location": location,
		})
		m.emitter.UserError("incorrect username or password")
	}
	return nil
}

// EnterConfirmationCode submits a confirmation code. Valid only in
// NeedsConfirmationCode; a location still matching the challenge
// pattern means the code was wrong and the caller may retry.
func (m *Machine) EnterConfirmationCode(ctx context.Context, code string) error {
	if m.state != StateNeedsConfirmationCode {
		m.emitter.InternalError("no confirmation code was requested")
		return xerrors.Internal("no confirmation code was requested")
	}
	return m.submitChallengeCode(ctx, code, m.cfg.ConfirmationPattern)
}

// EnterTwoFactorCode submits a two-factor code. Valid only in
// Needs2FACode.
func (m *Machine) EnterTwoFactorCode(ctx context.Context, code string) error {
	if m.state != StateNeeds2FACode {
		m.emitter.InternalError("no two-factor code was requested")
		return xerrors.Internal("no two-factor code was requested")
	}
	return m.submitChallengeCode(ctx, code, m.cfg.TwoFactorPattern)
}

func (m *Machine) submitChallengeCode(ctx context.Context, code, challengePattern string) error {
	if err := m.page.Type(ctx, selectorCodeInput, code); err != nil {
		return fmt.Errorf("enter code: %w", err)
	}
	if err := m.page.Click(ctx, selectorCodeSubmit); err != nil {
		return fmt.Errorf("submit code: %w", err)
	}

	location := m.page.URL()
	if strings.Contains(location, challengePattern) {
		// Still on the same challenge: the code was judged wrong.
		m.lastCodeAttemptFailed = true
		m.emitter.UserError("the code was not accepted; try again")
		return nil
	}

	m.lastCodeAttemptFailed = false
	switch {
	case strings.Contains(location, m.cfg.ConfirmationPattern):
		m.state = StateNeedsConfirmationCode
		m.emitter.ActionRequired("a confirmation code was sent to you; submit it to continue")
	case strings.Contains(location, m.cfg.TwoFactorPattern):
		m.state = StateNeeds2FACode
		m.emitter.ActionRequired("enter your two-factor authentication code to continue")
	default:
		// The challenge chain is exhausted and the flow advanced.
		m.state = StateLoggedIn
		m.logger.Info("Logged in")
		m.emitter.Success()
	}
	return nil
}

// StartFetchingBookmarks navigates to the bookmarks view and blocks
// until the first matching API exchange is captured: the request with
// its headers and query parameters, the response with its body. Both
// must land before the requester is armed; if either wait fails the
// operation fails without partial capture.
func (m *Machine) StartFetchingBookmarks(ctx context.Context) error {
	if m.state != StateLoggedIn {
		m.emitter.InternalError("cannot fetch bookmarks before logging in")
		return xerrors.Internal("cannot fetch bookmarks before logging in")
	}

	captureCtx, cancel := context.WithTimeout(ctx, m.cfg.CaptureTimeout)
	defer cancel()

	var request CapturedRequest
	var response CapturedResponse

	g, gctx := errgroup.WithContext(captureCtx)
	g.Go(func() error {
		var err error
		request, err = m.page.WaitForRequest(gctx, m.cfg.BookmarksAPIPattern)
		if err != nil {
			return fmt.Errorf("await bookmark request: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		response, err = m.page.WaitForResponse(gctx, m.cfg.BookmarksAPIPattern)
		if err != nil {
			return fmt.Errorf("await bookmark response: %w", err)
		}
		return nil
	})

	if err := m.page.Goto(captureCtx, m.cfg.BaseURL+m.cfg.BookmarksPath); err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("navigate to bookmarks: %w", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	body, err := response.Body()
	if err != nil {
		return fmt.Errorf("read bookmark response body: %w", err)
	}

	if apiErrors, ok := timeline.IsErrorResponse(body); ok {
		msg := fmt.Sprintf("bookmark request failed upstream: %s (code %d)", apiErrors[0].Message, apiErrors[0].Code)
		m.emitter.InternalError(msg)
		return xerrors.Upstream(msg, nil)
	}

	requester := bookmarks.NewRequester()
	if err := requester.Init(request.Headers(), request.Query(), body); err != nil {
		return xerrors.Upstream("bookmark timeline could not be parsed", err)
	}

	m.requester = requester
	m.logger.InfoWithFields("Bookmark exchange captured", map[string]interface{}{
		"tweets":   len(requester.Tweets()),
		"request":  request.URL(),
		"method":   request.Method(),
		"response": response.Status(),
	})
	m.emitter.Success()
	return nil
}

// LogOut drives logout. It no-ops unless logged in in a way that
// matters; still looking logged in afterward is logged as a warning and
// returned as ErrLogoutIncomplete rather than treated as fatal.
func (m *Machine) LogOut(ctx context.Context, emitSuccess bool) error {
	if m.browser == nil {
		m.emitter.InternalError("cannot log out before a browser session is attached")
		return xerrors.Internal("cannot log out before a browser session is attached")
	}
	if m.state != StateLoggedIn {
		return nil
	}

	if err := m.page.Goto(ctx, m.cfg.BaseURL+"/logout"); err != nil {
		return fmt.Errorf("navigate to logout: %w", err)
	}
	if err := m.page.Click(ctx, selectorLogoutConfirm); err != nil {
		return fmt.Errorf("confirm logout: %w", err)
	}

	location := m.page.URL()
	if strings.Contains(location, m.cfg.HomePattern) {
		m.logger.WarnWithFields("Logout did not leave the logged-in page", map[string]interface{}{
			"location": location,
		})
		return ErrLogoutIncomplete
	}

	m.state = StateLoggedOut
	m.logger.Info("Logged out")
	if emitSuccess {
		m.emitter.Success()
	}
	return nil
}

// TearDown logs out if needed, releases the driven browser session
// unconditionally and resets the machine. It is safe to call multiple
// times and from any state, including Inactive.
func (m *Machine) TearDown(ctx context.Context) error {
	if m.state == StateLoggedIn {
		// Best-effort; the browser is released regardless.
		if err := m.LogOut(ctx, false); err != nil {
			m.logger.WithError(err).Warn("Logout during teardown failed")
		}
	}

	var closeErr error
	if m.browser != nil {
		closeErr = m.browser.Close(ctx)
		m.browser = nil
		m.page = nil
	}

	m.state = StateInactive
	m.requester = nil
	m.lastAuthAttemptFailed = false
	m.lastCodeAttemptFailed = false

	if closeErr != nil {
		m.logger.WithError(closeErr).Warn("Browser session did not close cleanly")
	}
	m.emitter.Success()
	return closeErr
}
