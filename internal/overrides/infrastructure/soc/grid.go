package soc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// flexString accepts strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(trimmed)
	return nil
}

type gridRef struct {
	ShortForm string `json:"ShortForm"`
	Title     string `json:"Title"`
	Text      string `json:"Text"`
}

func (r *gridRef) short() string {
	if r == nil {
		return ""
	}
	if r.ShortForm != "" {
		return r.ShortForm
	}
	return r.title()
}

func (r *gridRef) title() string {
	if r == nil {
		return ""
	}
	if r.Title != "" {
		return r.Title
	}
	return r.Text
}

type gridItem struct {
	ID                          flexID     `json:"Id"`
	TagNumber                   flexString `json:"TagNumber"`
	Description                 flexString `json:"Description"`
	Comment                     flexString `json:"Comment"`
	AdditionalValueAppliedState flexString `json:"AdditionalValueAppliedState"`
	AdditionalValueRemovedState flexString `json:"AdditionalValueRemovedState"`
	OverrideType                *gridRef   `json:"OverrideType"`
	OverrideMethod              *gridRef   `json:"OverrideMethod"`
	OverrideAppliedState        *gridRef   `json:"OverrideAppliedState"`
	OverrideRemovedState        *gridRef   `json:"OverrideRemovedState"`
	CurrentState                *gridRef   `json:"CurrentState"`
}

type gridEnvelope struct {
	Data []gridItem `json:"Data"`
}

// DecodeGridJSON reads a Kendo grid dump, either a bare array or a
// {"Data": [...]} envelope.
func DecodeGridJSON(data []byte) ([]overrides.ExistingOverride, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("soc: empty grid data")
	}
	var items []gridItem
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("soc: decode grid: %w", err)
		}
	} else {
		var env gridEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("soc: decode grid: %w", err)
		}
		items = env.Data
	}
	out := make([]overrides.ExistingOverride, 0, len(items))
	for _, item := range items {
		out = append(out, overrides.ExistingOverride{
			ServerID:               int64(item.ID),
			TagNumber:              string(item.TagNumber),
			Description:            string(item.Description),
			TypeTitle:              item.OverrideType.short(),
			MethodTitle:            item.OverrideMethod.short(),
			AppliedStateTitle:      item.OverrideAppliedState.title(),
			RemovedStateTitle:      item.OverrideRemovedState.title(),
			CurrentStateTitle:      item.CurrentState.title(),
			Comment:                string(item.Comment),
			AdditionalValueApplied: string(item.AdditionalValueAppliedState),
			AdditionalValueRemoved: string(item.AdditionalValueRemovedState),
		})
	}
	return out, nil
}

// ListOverrides reads the persisted overrides of a certificate.
func (c *Client) ListOverrides(ctx context.Context, certificateID int64, cred Credential) ([]overrides.ExistingOverride, error) {
	if certificateID <= 0 {
		return nil, fmt.Errorf("%w: %d", overrides.ErrInvalidCertificateID, certificateID)
	}
	var raw json.RawMessage
	err := c.getJSON(ctx, c.paths.Overrides, url.Values{"id": {strconv.FormatInt(certificateID, 10)}}, cred, &raw)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("soc: certificate %d: %w", certificateID, err)
		}
		return nil, fmt.Errorf("soc: list overrides: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil, nil
	}
	return DecodeGridJSON(raw)
}
