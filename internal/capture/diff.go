package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
)

// Kind classifies a difference.
type Kind string

const (
	MissingInGenerated Kind = "missing_in_generated"
	MissingInReference Kind = "missing_in_reference"
	ValueMismatch      Kind = "value_mismatch"
)

// TopLevel is the record index used for form fields outside the records.
const TopLevel = -1

// Difference is one drifting field.
type Difference struct {
	Record    int
	Field     string
	Kind      Kind
	Reference string
	Generated string
}

// Report lists differences ordered by record index, then field name.
type Report struct {
	Differences []Difference
}

// Empty reports whether both payloads matched.
func (r Report) Empty() bool { return len(r.Differences) == 0 }

// ByRecord indexes the differences by record, then field.
func (r Report) ByRecord() map[int]map[string]Difference {
	out := make(map[int]map[string]Difference)
	for _, d := range r.Differences {
		if out[d.Record] == nil {
			out[d.Record] = make(map[string]Difference)
		}
		out[d.Record][d.Field] = d
	}
	return out
}

// WriteText renders the report for humans.
func (r Report) WriteText(w io.Writer) error {
	if r.Empty() {
		_, err := io.WriteString(w, "payloads match\n")
		return err
	}
	for _, d := range r.Differences {
		where := fmt.Sprintf("record %d", d.Record)
		if d.Record == TopLevel {
			where = "form"
		}
		var err error
		switch d.Kind {
		case MissingInGenerated:
			_, err = fmt.Fprintf(w, "%s %s: missing in generated (reference %s)\n", where, d.Field, d.Reference)
		case MissingInReference:
			_, err = fmt.Fprintf(w, "%s %s: missing in reference (generated %s)\n", where, d.Field, d.Generated)
		default:
			_, err = fmt.Fprintf(w, "%s %s: reference %s, generated %s\n", where, d.Field, d.Reference, d.Generated)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r Report) String() string {
	var b strings.Builder
	_ = r.WriteText(&b)
	return b.String()
}

// DiffOption configures Diff.
type DiffOption func(*diffOptions)

type diffOptions struct {
	ignore map[string]bool
}

// IgnoreFields skips fields by name, top-level or per record.
func IgnoreFields(names ...string) DiffOption {
	return func(o *diffOptions) {
		for _, n := range names {
			o.ignore[n] = true
		}
	}
}

// CompareRequestToken includes the session token, ignored by default.
func CompareRequestToken() DiffOption {
	return func(o *diffOptions) { delete(o.ignore, soc.FieldRequestToken) }
}

// Diff compares reference and generated field by field. Values are compared
// as canonical JSON, so "1" and 1 differ.
func Diff(reference, generated Payload, opts ...DiffOption) Report {
	o := diffOptions{ignore: map[string]bool{soc.FieldRequestToken: true}}
	for _, opt := range opts {
		opt(&o)
	}

	var diffs []Difference
	diffs = append(diffs, diffFields(TopLevel, reference.Fields, generated.Fields, o)...)
	n := max(len(reference.Records), len(generated.Records))
	for i := 0; i < n; i++ {
		var ref, gen map[string]json.RawMessage
		if i < len(reference.Records) {
			ref = reference.Records[i]
		}
		if i < len(generated.Records) {
			gen = generated.Records[i]
		}
		diffs = append(diffs, diffFields(i, ref, gen, o)...)
	}
	return Report{Differences: diffs}
}

func diffFields(record int, ref, gen map[string]json.RawMessage, o diffOptions) []Difference {
	names := make(map[string]struct{}, len(ref)+len(gen))
	for k := range ref {
		names[k] = struct{}{}
	}
	for k := range gen {
		names[k] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		if !o.ignore[k] {
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	var out []Difference
	for _, name := range sorted {
		r, inRef := ref[name]
		g, inGen := gen[name]
		switch {
		case inRef && !inGen:
			out = append(out, Difference{Record: record, Field: name, Kind: MissingInGenerated, Reference: canonical(r)})
		case !inRef && inGen:
			out = append(out, Difference{Record: record, Field: name, Kind: MissingInReference, Generated: canonical(g)})
		default:
			cr, cg := canonical(r), canonical(g)
			if cr != cg {
				out = append(out, Difference{Record: record, Field: name, Kind: ValueMismatch, Reference: cr, Generated: cg})
			}
		}
	}
	return out
}

// canonical re-encodes raw with sorted object keys and no whitespace.
func canonical(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return string(out)
}
