package soc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// Form field names of the submission request.
const (
	FieldCertificateID = "SystemOverrideCertificateId"
	FieldOverrides     = "overrides"
	FieldRequestToken  = "__RequestVerificationToken"
)

// WireRecord is one override as the SOC application expects it.
type WireRecord struct {
	ID                          *int64  `json:"Id,omitempty"`
	TagNumber                   string  `json:"TagNumber"`
	Description                 string  `json:"Description"`
	OverrideTypeID              string  `json:"OverrideTypeId"`
	OverrideMethodID            string  `json:"OverrideMethodId"`
	OverrideAppliedStateID      string  `json:"OverrideAppliedStateId"`
	OverrideRemovedStateID      string  `json:"OverrideRemovedStateId"`
	Comment                     *string `json:"Comment"`
	AdditionalValueAppliedState *string `json:"AdditionalValueAppliedState"`
	AdditionalValueRemovedState *string `json:"AdditionalValueRemovedState"`
	CurrentOverrideStateID      string  `json:"CurrentOverrideStateId"`
	OrderID                     int     `json:"OrderId"`
	OverrideIndex               int     `json:"OverrideIndex"`
	SystemOverrideCertificateID int64   `json:"SystemOverrideCertificateId"`
}

// Payload is a decoded submission request.
type Payload struct {
	CertificateID int64
	Records       []WireRecord
	RequestToken  string
}

// EncodeRecords converts the records of set into wire records.
func EncodeRecords(set *overrides.CertificateOverrideSet, emptyAsNull bool) []WireRecord {
	out := make([]WireRecord, 0, set.Len())
	for _, rec := range set.Records {
		w := WireRecord{
			TagNumber:                   rec.TagNumber,
			Description:                 rec.Description,
			OverrideTypeID:              formatID(rec.TypeID),
			OverrideMethodID:            formatID(rec.MethodID),
			OverrideAppliedStateID:      formatID(rec.AppliedStateID),
			OverrideRemovedStateID:      formatID(rec.RemovedStateID),
			Comment:                     optional(rec.Comment, emptyAsNull),
			AdditionalValueAppliedState: optional(rec.AdditionalValueApplied, emptyAsNull),
			AdditionalValueRemovedState: optional(rec.AdditionalValueRemoved, emptyAsNull),
			CurrentOverrideStateID:      formatID(rec.CurrentStateID),
			OrderID:                     rec.OrderIndex,
			OverrideIndex:               rec.OrderIndex - 1,
			SystemOverrideCertificateID: rec.CertificateID,
		}
		if !rec.IsNew() {
			id := rec.ServerID
			w.ID = &id
		}
		out = append(out, w)
	}
	return out
}

// EncodeForm builds the form body of a submission.
func EncodeForm(set *overrides.CertificateOverrideSet, requestToken string, emptyAsNull bool) (url.Values, error) {
	if set.Len() == 0 {
		return nil, overrides.ErrEmptySet
	}
	records, err := json.Marshal(EncodeRecords(set, emptyAsNull))
	if err != nil {
		return nil, fmt.Errorf("soc: encode records: %w", err)
	}
	form := url.Values{}
	form.Set(FieldCertificateID, formatID(set.CertificateID))
	form.Set(FieldOverrides, string(records))
	if requestToken != "" {
		form.Set(FieldRequestToken, requestToken)
	}
	return form, nil
}

// DecodePayload parses a form-encoded submission body.
func DecodePayload(body []byte) (Payload, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return Payload{}, fmt.Errorf("soc: parse form: %w", err)
	}
	var p Payload
	if raw := form.Get(FieldCertificateID); raw != "" {
		p.CertificateID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Payload{}, fmt.Errorf("soc: invalid %s %q", FieldCertificateID, raw)
		}
	}
	p.RequestToken = form.Get(FieldRequestToken)
	raw := form.Get(FieldOverrides)
	if raw == "" {
		return Payload{}, errors.New("soc: payload has no overrides")
	}
	if err := json.Unmarshal([]byte(raw), &p.Records); err != nil {
		return Payload{}, fmt.Errorf("soc: decode overrides: %w", err)
	}
	return p, nil
}

// Set converts the payload back into a certificate set. Label is not part
// of the wire format and stays empty.
func (p Payload) Set() (*overrides.CertificateOverrideSet, error) {
	set := &overrides.CertificateOverrideSet{CertificateID: p.CertificateID}
	for i, w := range p.Records {
		rec := overrides.OverrideRecord{
			TagNumber:              w.TagNumber,
			Description:            w.Description,
			Comment:                deref(w.Comment),
			AdditionalValueApplied: deref(w.AdditionalValueAppliedState),
			AdditionalValueRemoved: deref(w.AdditionalValueRemovedState),
			OrderIndex:             w.OrderID,
			CertificateID:          w.SystemOverrideCertificateID,
		}
		if w.ID != nil {
			rec.ServerID = *w.ID
		}
		fields := []struct {
			name string
			raw  string
			dst  *int64
		}{
			{"OverrideTypeId", w.OverrideTypeID, &rec.TypeID},
			{"OverrideMethodId", w.OverrideMethodID, &rec.MethodID},
			{"OverrideAppliedStateId", w.OverrideAppliedStateID, &rec.AppliedStateID},
			{"OverrideRemovedStateId", w.OverrideRemovedStateID, &rec.RemovedStateID},
			{"CurrentOverrideStateId", w.CurrentOverrideStateID, &rec.CurrentStateID},
		}
		for _, f := range fields {
			n, err := parseID(f.raw)
			if err != nil {
				return nil, fmt.Errorf("soc: record %d: %s: %w", i, f.name, err)
			}
			*f.dst = n
		}
		set.Records = append(set.Records, rec)
	}
	return set, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func optional(value string, emptyAsNull bool) *string {
	if value == "" && emptyAsNull {
		return nil
	}
	v := value
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
