package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindRun         = "run"
	KindCredentials = "credentials"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRun:
		return runTemplate, nil
	case KindCredentials:
		return credentialsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// ValidateFile loads path as kind and reports the first problem.
func ValidateFile(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRun:
		_, err := Load(path)
		return err
	case KindCredentials:
		_, err := LoadCredentials(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const runTemplate = `driver = "playwright"
headless = true
browser_timeout = "30s"

affiliation_id = "10029"
affiliation_name = "Broad Institute Rare Disease Group"
approver = "Samantha Baxter"

settle_delay = "7s"
ready_selector = ".view-summary"
ready_timeout = "30s"
control_selector = ".btn"
control_retries = 5
control_interval = "1s"
control_backoff = 1.0
catalog_timeout = "40s"
results_timeout = "10s"

results_table_selector = ".clinvar-submission-data table"
approver_field_selector = ".form-control"

diagnostics_dir = "variants"
output_dir = "."
summary_xlsx = false
strict_reconcile = false
external_column = "Variant"
credentials = "credentials.json"

[targets.test]
domain = "curation-test.clinicalgenome.org"
login_button_selector = ".link~ .link+ .link span"

[targets.prod]
domain = "curation.clinicalgenome.org"
login_button_selector = ".link+ .link span"
`

const credentialsTemplate = `{
  "username": "curator@example.org",
  "password": "change-me"
}
`
