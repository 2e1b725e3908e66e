// Package catalog owns the live record listing read from the portal.
//
// Ownership boundary:
// - status filters per workflow
// - reading record rows through page.Driver
// - the ordered identifier -> Record mapping
//
// Records are only valid for the browser session that listed them. The
// catalog does not navigate; callers load the listing page first.
package catalog
