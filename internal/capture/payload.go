// Package capture records submission payloads and compares a reference
// payload captured from the SOC application with a generated one.
package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
)

// Payload is a submission split into its top-level form fields and its
// records, every value kept as raw JSON.
type Payload struct {
	Fields  map[string]json.RawMessage
	Records []map[string]json.RawMessage
}

// ParsePayload accepts a form-encoded submission body, a JSON object
// carrying an "overrides" array, or a bare JSON array of records.
func ParsePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{}, errors.New("capture: empty payload")
	}
	switch trimmed[0] {
	case '[':
		records, err := parseRecords(trimmed)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Fields: map[string]json.RawMessage{}, Records: records}, nil
	case '{':
		var top map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &top); err != nil {
			return Payload{}, fmt.Errorf("capture: decode payload: %w", err)
		}
		p := Payload{Fields: map[string]json.RawMessage{}}
		for k, v := range top {
			if k != soc.FieldOverrides {
				p.Fields[k] = v
				continue
			}
			raw := v
			// the records may be a JSON string holding the array
			var inner string
			if json.Unmarshal(v, &inner) == nil {
				raw = json.RawMessage(inner)
			}
			records, err := parseRecords(raw)
			if err != nil {
				return Payload{}, err
			}
			p.Records = records
		}
		return p, nil
	default:
		return parseForm(string(trimmed))
	}
}

func parseForm(body string) (Payload, error) {
	form, err := url.ParseQuery(body)
	if err != nil {
		return Payload{}, fmt.Errorf("capture: parse form: %w", err)
	}
	p := Payload{Fields: map[string]json.RawMessage{}}
	for k, v := range form {
		if k == soc.FieldOverrides {
			records, err := parseRecords([]byte(form.Get(k)))
			if err != nil {
				return Payload{}, err
			}
			p.Records = records
			continue
		}
		raw, _ := json.Marshal(v[0])
		p.Fields[k] = raw
	}
	if _, ok := form[soc.FieldOverrides]; !ok {
		return Payload{}, fmt.Errorf("capture: form has no %q field", soc.FieldOverrides)
	}
	return p, nil
}

func parseRecords(data []byte) ([]map[string]json.RawMessage, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("capture: decode records: %w", err)
	}
	return records, nil
}

// FieldNames returns the sorted top-level field names.
func (p Payload) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Captured is one recorded request.
type Captured struct {
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	Body       string    `json:"body"`
	CapturedAt time.Time `json:"captured_at"`
}

// Payload parses the captured body.
func (c Captured) Payload() (Payload, error) {
	return ParsePayload([]byte(c.Body))
}

// WriteFile stores c as JSON.
func (c Captured) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadPayloadFile loads a payload from a capture file written by WriteFile
// or from a raw body dump.
func ReadPayloadFile(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Payload{}, err
	}
	var c Captured
	if json.Unmarshal(data, &c) == nil && c.Body != "" {
		return c.Payload()
	}
	return ParsePayload(data)
}
