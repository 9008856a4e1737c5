package soc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/said46/autoSOC/internal/observability/metrics"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// flexID decodes ids sent either as numbers or numeric strings.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("soc: invalid id %s", b)
	}
	*f = flexID(n)
	return nil
}

// listItem is a Kendo dropdown entry.
type listItem struct {
	Value flexID `json:"Value"`
	ID    flexID `json:"Id"`
	Text  string `json:"Text"`
	Title string `json:"Title"`
}

func (i listItem) id() int64 {
	if i.Value != 0 {
		return int64(i.Value)
	}
	return int64(i.ID)
}

func (i listItem) title() string {
	if i.Text != "" {
		return i.Text
	}
	return i.Title
}

type statesResponse struct {
	Applied []listItem `json:"Applied"`
	Removed []listItem `json:"Removed"`
}

// Types lists the configured override types.
func (c *Client) Types(ctx context.Context) ([]overrides.OverrideType, error) {
	_ = ctx
	return append([]overrides.OverrideType(nil), c.types...), nil
}

// MethodsForType fetches the methods valid for typeID.
func (c *Client) MethodsForType(ctx context.Context, typeID int64) ([]overrides.OverrideMethod, error) {
	started := time.Now()
	var items []listItem
	err := c.getJSON(ctx, c.paths.Methods, url.Values{"overrideTypeId": {strconv.FormatInt(typeID, 10)}}, c.catalogCred, &items)
	metrics.ObserveCatalog("methods", err, time.Since(started))
	if err != nil {
		c.logger.Warn("catalog methods fetch failed", "type_id", typeID, "error", err)
		return nil, fmt.Errorf("%w: methods for type %d: %v", overrides.ErrCatalogUnavailable, typeID, err)
	}
	methods := make([]overrides.OverrideMethod, 0, len(items))
	for _, item := range items {
		methods = append(methods, overrides.OverrideMethod{ID: item.id(), Title: item.title(), TypeID: typeID})
	}
	c.logger.Debug("catalog methods fetched", "type_id", typeID, "count", len(methods))
	return methods, nil
}

// StatesForMethod fetches the applied and removed states of methodID.
// A bare array response serves both roles.
func (c *Client) StatesForMethod(ctx context.Context, methodID int64) (overrides.StateSet, error) {
	started := time.Now()
	var raw json.RawMessage
	err := c.getJSON(ctx, c.paths.States, url.Values{"overrideMethodId": {strconv.FormatInt(methodID, 10)}}, c.catalogCred, &raw)
	var resp statesResponse
	if err == nil {
		err = decodeStates(raw, &resp)
	}
	metrics.ObserveCatalog("states", err, time.Since(started))
	if err != nil {
		c.logger.Warn("catalog states fetch failed", "method_id", methodID, "error", err)
		return overrides.StateSet{}, fmt.Errorf("%w: states for method %d: %v", overrides.ErrCatalogUnavailable, methodID, err)
	}
	set := overrides.StateSet{
		Applied: toStates(resp.Applied, methodID, overrides.RoleApplied),
		Removed: toStates(resp.Removed, methodID, overrides.RoleRemoved),
	}
	c.logger.Debug("catalog states fetched", "method_id", methodID, "applied", len(set.Applied), "removed", len(set.Removed))
	return set, nil
}

func decodeStates(raw json.RawMessage, out *statesResponse) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []listItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		out.Applied = items
		out.Removed = items
		return nil
	}
	return json.Unmarshal(trimmed, out)
}

func toStates(items []listItem, methodID int64, role overrides.Role) []overrides.OverrideState {
	states := make([]overrides.OverrideState, 0, len(items))
	for _, item := range items {
		states = append(states, overrides.OverrideState{ID: item.id(), Title: item.title(), MethodID: methodID, Role: role})
	}
	return states
}
