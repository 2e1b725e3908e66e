// Package session owns bringing one browser tab to an authenticated,
// listing-ready state.
//
// Ownership boundary:
// - portal targets (test, prod)
// - the affiliation cookie
// - the login form flow
//
// Every failure here is fatal to the run and surfaces as *SessionError.
package session
