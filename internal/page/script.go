package page

import (
	"context"
	"encoding/json"
	"fmt"
)

// Browser-side functions shared by every backend. Each returns a JSON string
// so that results cross the protocol boundary the same way everywhere.
const (
	rowsScript = `(args) => JSON.stringify(Array.from(document.querySelectorAll(args.rows)).map((tr) => {
	const row = {};
	for (const p of args.probes) {
		const el = tr.querySelector(p.selector);
		if (el) {
			const v = el[p.property];
			row[p.key] = v === undefined || v === null ? '' : String(v);
		}
	}
	return row;
}))`

	tableScript = `(sel) => {
	const t = document.querySelector(sel);
	if (!t) return 'null';
	const out = {header: [], rows: []};
	for (const tr of t.querySelectorAll('tr')) {
		const cells = Array.from(tr.querySelectorAll('th,td'));
		if (!cells.length) continue;
		const texts = cells.map((c) => (c.innerText || '').trim());
		if (cells.every((c) => c.tagName === 'TH')) {
			if (!out.header.length) out.header = texts;
			continue;
		}
		if (texts.some((v) => v !== '')) out.rows.push(texts);
	}
	return JSON.stringify(out);
}`

	selectScript = `(args) => {
	const el = document.querySelector(args.selector);
	if (!el || el.tagName !== 'SELECT') return 'missing';
	let opt = Array.from(el.options).find((o) => o.value === args.value);
	if (!opt) opt = Array.from(el.options).find((o) => o.label === args.value || o.text === args.value);
	if (!opt) return 'no-option';
	el.value = opt.value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return 'ok';
}`
)

type rowsArgs struct {
	Rows   string  `json:"rows"`
	Probes []Probe `json:"probes"`
}

type selectArgs struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// Script is a browser-side function paired with its single JSON argument.
type Script struct {
	Fn  string
	Arg any
}

// Expression inlines the argument into a call of the function, for backends
// whose evaluate primitive takes no arguments.
func (s Script) Expression() (string, error) {
	return Invocation(s.Fn, s.Arg)
}

// RowsScript reads probes from every row matched by rowSelector.
func RowsScript(rowSelector string, probes []Probe) Script {
	return Script{Fn: rowsScript, Arg: rowsArgs{Rows: rowSelector, Probes: probes}}
}

func TableScript(selector string) Script {
	return Script{Fn: tableScript, Arg: selector}
}

// SelectScript chooses an option by value or label and fires change events.
func SelectScript(selector, value string) Script {
	return Script{Fn: selectScript, Arg: selectArgs{Selector: selector, Value: value}}
}

func Invocation(fn string, arg any) (string, error) {
	raw, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("page: encode script arg: %w", err)
	}
	return fmt.Sprintf("(%s)(%s)", fn, raw), nil
}

func DecodeRows(raw string) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("page: decode rows: %w", err)
	}
	return rows, nil
}

func DecodeTable(selector, raw string) (Table, error) {
	if raw == "null" || raw == "" {
		return Table{}, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	var table Table
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return Table{}, fmt.Errorf("page: decode table: %w", err)
	}
	return table, nil
}

// CheckSelect maps the select script status to an error.
func CheckSelect(selector, value, status string) error {
	switch status {
	case "ok":
		return nil
	case "no-option":
		return fmt.Errorf("%w: option %q in %s", ErrElementNotFound, value, selector)
	default:
		return fmt.Errorf("%w: select %s", ErrElementNotFound, selector)
	}
}

// Evaluator runs a browser-side script and returns its string result.
type Evaluator func(ctx context.Context, script Script) (string, error)

// SelectOption chooses value in the select at selector with a single
// evaluation, matching option values first and labels second. Nothing waits
// on an option that does not exist.
func SelectOption(ctx context.Context, eval Evaluator, selector, value string) error {
	status, err := eval(ctx, SelectScript(selector, value))
	if err != nil {
		return err
	}
	return CheckSelect(selector, value, status)
}
