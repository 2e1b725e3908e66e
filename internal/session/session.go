package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/vcictl/internal/page"
	"github.com/rs/zerolog/log"
)

var (
	ErrSession            = errors.New("session: setup failed")
	ErrMissingCredentials = errors.New("session: username and password are required")
)

// Session setup phase marker.
type Phase string

const (
	PhaseOpen    Phase = "open"
	PhaseCookie  Phase = "cookie"
	PhaseLogin   Phase = "login"
	PhaseCatalog Phase = "catalog"
)

type SessionError struct {
	Phase Phase
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Phase, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func (e *SessionError) Is(target error) bool {
	return target == ErrSession
}

// Target is one deployment of the portal.
type Target struct {
	Name                string
	Domain              string
	LoginButtonSelector string
}

func (t Target) URL() string {
	return "https://" + t.Domain
}

const (
	TargetTest = "test"
	TargetProd = "prod"
)

// DefaultTargets returns the known portal deployments keyed by name.
func DefaultTargets() map[string]Target {
	return map[string]Target{
		TargetTest: {Name: TargetTest, Domain: "curation-test.clinicalgenome.org", LoginButtonSelector: ".link~ .link+ .link span"},
		TargetProd: {Name: TargetProd, Domain: "curation.clinicalgenome.org", LoginButtonSelector: ".link+ .link span"},
	}
}

// Affiliation is preselected through a cookie so login skips the
// interactive affiliation picker.
type Affiliation struct {
	ID        string   `json:"affiliation_id"`
	FullName  string   `json:"affiliation_fullname"`
	Approvers []string `json:"approver"`
}

const AffiliationCookieName = "affiliation"

func (a Affiliation) Cookie(domain string) (page.Cookie, error) {
	if a.Approvers == nil {
		a.Approvers = []string{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return page.Cookie{}, fmt.Errorf("session: encode affiliation: %w", err)
	}
	return page.Cookie{Name: AffiliationCookieName, Value: string(raw), Domain: domain, Path: "/"}, nil
}

type Credentials struct {
	Username string
	Password string
}

// Selectors of the hosted login form and the listing it lands on.
type Selectors struct {
	EmailInput    string
	PasswordInput string
	Submit        string
	ListingRows   string
}

func DefaultSelectors() Selectors {
	return Selectors{
		EmailInput:    ".auth0-lock-input-email .auth0-lock-input",
		PasswordInput: ".auth0-lock-input-password .auth0-lock-input",
		Submit:        ".auth0-lock-submit",
		ListingRows:   ".affiliated-interpretation-list tbody tr",
	}
}

type Options struct {
	Target      Target
	Affiliation Affiliation
	Credentials Credentials
	Selectors   Selectors
	FormTimeout time.Duration
	// NavigationTimeout bounds the post-submit navigation.
	NavigationTimeout time.Duration
	// CatalogTimeout bounds the wait for listing rows; large affiliations
	// load slowly.
	CatalogTimeout time.Duration
	// ProgressSnapshot, when set, captures the page right after login.
	ProgressSnapshot string
}

// Open loads the portal, installs the affiliation cookie, logs in and waits
// for the record listing.
func Open(ctx context.Context, driver page.Driver, opts Options) error {
	fail := func(phase Phase, err error) error {
		return &SessionError{Phase: phase, Err: err}
	}
	if opts.Credentials.Username == "" || opts.Credentials.Password == "" {
		return fail(PhaseLogin, ErrMissingCredentials)
	}
	logger := log.With().Str("target", opts.Target.Name).Str("domain", opts.Target.Domain).Logger()

	if err := driver.Navigate(ctx, opts.Target.URL()); err != nil {
		return fail(PhaseOpen, err)
	}
	cookie, err := opts.Affiliation.Cookie(opts.Target.Domain)
	if err != nil {
		return fail(PhaseCookie, err)
	}
	if err := driver.SetCookie(ctx, cookie); err != nil {
		return fail(PhaseCookie, err)
	}
	logger.Debug().Str("affiliation", opts.Affiliation.ID).Msg("session.Open cookie set")

	if err := login(ctx, driver, opts); err != nil {
		return fail(PhaseLogin, err)
	}
	if opts.ProgressSnapshot != "" {
		if err := driver.Snapshot(ctx, opts.ProgressSnapshot); err != nil {
			logger.Warn().Err(err).Msg("session.Open progress snapshot failed")
		}
	}

	err = driver.WaitFor(ctx, opts.Selectors.ListingRows, page.WaitOptions{Visible: true, Timeout: opts.CatalogTimeout})
	if err != nil {
		return fail(PhaseCatalog, err)
	}
	logger.Info().Str("user", opts.Credentials.Username).Msg("session.Open authenticated")
	return nil
}

func login(ctx context.Context, driver page.Driver, opts Options) error {
	sel := opts.Selectors
	if err := driver.Click(ctx, opts.Target.LoginButtonSelector); err != nil {
		return fmt.Errorf("open login form: %w", err)
	}
	if err := driver.WaitFor(ctx, sel.EmailInput, page.WaitOptions{Visible: true, Timeout: opts.FormTimeout}); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := driver.Type(ctx, sel.EmailInput, opts.Credentials.Username); err != nil {
		return fmt.Errorf("username: %w", err)
	}
	if err := driver.Type(ctx, sel.PasswordInput, opts.Credentials.Password); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	if err := driver.Submit(ctx, sel.Submit, opts.NavigationTimeout); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}
