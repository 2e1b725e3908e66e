package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/vcictl/internal/page"
	"github.com/danmuck/vcictl/internal/page/pagetest"
	"github.com/danmuck/vcictl/internal/testutil/testlog"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Target: DefaultTargets()[TargetTest],
		Affiliation: Affiliation{
			ID:        "10029",
			FullName:  "Broad Institute Rare Disease Group",
			Approvers: []string{"Samantha Baxter"},
		},
		Credentials:      Credentials{Username: "curator@example.org", Password: "hunter2"},
		Selectors:        DefaultSelectors(),
		ProgressSnapshot: filepath.Join(t.TempDir(), "progress.png"),
	}
}

func loginPortal(opts Options) *pagetest.Driver {
	d := pagetest.New()
	sel := opts.Selectors
	d.Attach(opts.Target.LoginButtonSelector)
	d.OnClickSelector(opts.Target.LoginButtonSelector, func(d *pagetest.Driver) {
		d.Attach(sel.EmailInput)
		d.Attach(sel.PasswordInput)
		d.Attach(sel.Submit)
	})
	d.OnClickSelector(sel.Submit, func(d *pagetest.Driver) { d.Attach(sel.ListingRows) })
	return d
}

func TestOpenLogsIn(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t)
	driver := loginPortal(opts)

	if err := Open(context.Background(), driver, opts); err != nil {
		t.Fatalf("open: %v", err)
	}
	if driver.Navigations[0] != "https://curation-test.clinicalgenome.org" {
		t.Fatalf("unexpected navigation: %v", driver.Navigations)
	}
	if len(driver.Cookies) != 1 {
		t.Fatalf("unexpected cookies: %+v", driver.Cookies)
	}
	cookie := driver.Cookies[0]
	want := `{"affiliation_id":"10029","affiliation_fullname":"Broad Institute Rare Disease Group","approver":["Samantha Baxter"]}`
	if cookie.Name != "affiliation" || cookie.Value != want || cookie.Path != "/" || cookie.Domain != opts.Target.Domain {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}
	if driver.Typed[opts.Selectors.EmailInput] != "curator@example.org" || driver.Typed[opts.Selectors.PasswordInput] != "hunter2" {
		t.Fatalf("unexpected typed values: %+v", driver.Typed)
	}
	if len(driver.Clicks) != 2 || driver.Clicks[1] != "submit:"+opts.Selectors.Submit {
		t.Fatalf("unexpected clicks: %v", driver.Clicks)
	}
	if len(driver.Snapshots) != 1 || driver.Snapshots[0] != opts.ProgressSnapshot {
		t.Fatalf("unexpected snapshots: %v", driver.Snapshots)
	}
}

func TestOpenFailsWithoutLoginButton(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t)
	opts.Target = DefaultTargets()[TargetProd]
	driver := loginPortal(testOptions(t))

	err := Open(context.Background(), driver, opts)
	var sessErr *SessionError
	if !errors.As(err, &sessErr) || sessErr.Phase != PhaseLogin {
		t.Fatalf("expected login-phase SessionError, got %v", err)
	}
	if !errors.Is(err, ErrSession) || !errors.Is(err, page.ErrElementNotFound) {
		t.Fatalf("unexpected error chain: %v", err)
	}
}

func TestOpenFailsWhenListingNeverLoads(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t)
	driver := loginPortal(opts)
	driver.OnClickSelector(opts.Selectors.Submit, nil)

	err := Open(context.Background(), driver, opts)
	var sessErr *SessionError
	if !errors.As(err, &sessErr) || sessErr.Phase != PhaseCatalog || !errors.Is(err, page.ErrWaitTimeout) {
		t.Fatalf("expected catalog-phase wait timeout, got %v", err)
	}
}

func TestOpenRequiresCredentials(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t)
	opts.Credentials.Password = ""
	driver := loginPortal(opts)

	if err := Open(context.Background(), driver, opts); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if len(driver.Navigations) != 0 {
		t.Fatalf("nothing may be loaded without credentials")
	}
}

func TestOpenNavigationFailure(t *testing.T) {
	testlog.Start(t)
	opts := testOptions(t)
	driver := loginPortal(opts)
	driver.FailNavigation(opts.Target.URL(), errors.New("dns"))

	err := Open(context.Background(), driver, opts)
	var sessErr *SessionError
	if !errors.As(err, &sessErr) || sessErr.Phase != PhaseOpen {
		t.Fatalf("expected open-phase SessionError, got %v", err)
	}
}

func TestAffiliationCookieWithoutApprovers(t *testing.T) {
	testlog.Start(t)
	cookie, err := Affiliation{ID: "1", FullName: "Lab"}.Cookie("example.org")
	if err != nil {
		t.Fatalf("cookie: %v", err)
	}
	if cookie.Value != `{"affiliation_id":"1","affiliation_fullname":"Lab","approver":[]}` {
		t.Fatalf("unexpected cookie value: %q", cookie.Value)
	}
}
