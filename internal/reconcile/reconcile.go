// Package reconcile matches the live catalog against the operator's list and
// produces the ordered work list for a batch.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/danmuck/vcictl/internal/catalog"
	"github.com/danmuck/vcictl/internal/observability"
	"github.com/danmuck/vcictl/internal/records"
	"github.com/rs/zerolog/log"
)

var ErrMismatch = errors.New("reconcile: catalog and external list disagree")

// Report is the outcome of one reconciliation. Work is the processing order.
// ExternalOnly and CatalogOnly are informational unless strict mode is on.
type Report struct {
	Work         []string
	ExternalOnly []string
	CatalogOnly  []string
	// External records whether an external list took part.
	External bool
}

// Mismatched reports whether either one-sided difference is non-empty.
func (r Report) Mismatched() bool {
	return len(r.ExternalOnly) > 0 || len(r.CatalogOnly) > 0
}

// Reconcile computes the work list. With a nil external set every catalog
// identifier is returned in catalog order. Otherwise the intersection is
// returned in external-list order, ExternalOnly follows external order and
// CatalogOnly follows catalog order.
func Reconcile(cat *catalog.Catalog, external *records.Set) Report {
	if external == nil {
		report := Report{Work: cat.Keys()}
		observability.RecordReconcile(len(report.Work), 0, 0)
		log.Info().Int("work", len(report.Work)).Msg("reconcile.Reconcile no external list, using full catalog")
		return report
	}

	report := Report{External: true}
	for _, id := range external.Items() {
		if cat.Has(id) {
			report.Work = append(report.Work, id)
		} else {
			report.ExternalOnly = append(report.ExternalOnly, id)
		}
	}
	for _, id := range cat.Keys() {
		if !external.Contains(id) {
			report.CatalogOnly = append(report.CatalogOnly, id)
		}
	}

	observability.RecordReconcile(len(report.Work), len(report.ExternalOnly), len(report.CatalogOnly))
	log.Info().
		Int("work", len(report.Work)).
		Int("external_only", len(report.ExternalOnly)).
		Int("catalog_only", len(report.CatalogOnly)).
		Msg("reconcile.Reconcile done")
	if len(report.ExternalOnly) > 0 {
		log.Warn().Strs("records", report.ExternalOnly).Msg("reconcile.Reconcile listed externally but not in catalog")
	}
	if len(report.CatalogOnly) > 0 {
		log.Info().Strs("records", report.CatalogOnly).Msg("reconcile.Reconcile in catalog but not listed externally")
	}
	return report
}

// Check returns ErrMismatch when strict is set and the report has any
// one-sided difference.
func Check(report Report, strict bool) error {
	if !strict || !report.Mismatched() {
		return nil
	}
	return fmt.Errorf("%w: external_only=%v catalog_only=%v", ErrMismatch, report.ExternalOnly, report.CatalogOnly)
}
