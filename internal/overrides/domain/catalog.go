package overrides

import (
	"context"
	"strings"
)

// Role distinguishes applied states from removed states.
type Role string

const (
	RoleApplied Role = "applied"
	RoleRemoved Role = "removed"
)

// Slot names one position of the selection tuple.
type Slot string

const (
	SlotType         Slot = "type"
	SlotMethod       Slot = "method"
	SlotAppliedState Slot = "applied state"
	SlotRemovedState Slot = "removed state"
)

// OverrideType is catalog reference data.
type OverrideType struct {
	ID    int64
	Title string
}

// OverrideMethod is valid only under its parent type.
type OverrideMethod struct {
	ID     int64
	Title  string
	TypeID int64
}

// OverrideState is valid only under its parent method.
type OverrideState struct {
	ID       int64
	Title    string
	MethodID int64
	Role     Role
}

// StateSet holds the states of one method partitioned by role.
type StateSet struct {
	Applied []OverrideState
	Removed []OverrideState
}

// Catalog reads the remote reference data.
type Catalog interface {
	MethodsForType(ctx context.Context, typeID int64) ([]OverrideMethod, error)
	StatesForMethod(ctx context.Context, methodID int64) (StateSet, error)
}

// TypeLister lists the known override types.
type TypeLister interface {
	Types(ctx context.Context) ([]OverrideType, error)
}

// DefaultTypes are the override types the SOC application ships with.
func DefaultTypes() []OverrideType {
	return []OverrideType{
		{ID: 1, Title: "Bypass"},
		{ID: 2, Title: "Blocking"},
		{ID: 3, Title: "Forcing"},
		{ID: 4, Title: "Logic"},
		{ID: 5, Title: "Alarm"},
	}
}

// FindMethod returns the method with id from methods.
func FindMethod(methods []OverrideMethod, id int64) (OverrideMethod, bool) {
	for _, m := range methods {
		if m.ID == id {
			return m, true
		}
	}
	return OverrideMethod{}, false
}

// FindState returns the state with id from states.
func FindState(states []OverrideState, id int64) (OverrideState, bool) {
	for _, s := range states {
		if s.ID == id {
			return s, true
		}
	}
	return OverrideState{}, false
}

// MatchTitle picks the index of the entry matching title: an exact
// case-insensitive match wins, otherwise a unique substring match.
// It returns -1 when nothing or more than one entry matches.
func MatchTitle(titles []string, title string) int {
	needle := strings.ToLower(strings.TrimSpace(title))
	if needle == "" {
		return -1
	}
	for i, t := range titles {
		if strings.ToLower(strings.TrimSpace(t)) == needle {
			return i
		}
	}
	found := -1
	for i, t := range titles {
		if strings.Contains(strings.ToLower(t), needle) {
			if found >= 0 {
				return -1
			}
			found = i
		}
	}
	return found
}

// Label composes the cosmetic "type / method" display string.
func Label(typeTitle, methodTitle string) string {
	switch {
	case typeTitle == "":
		return methodTitle
	case methodTitle == "":
		return typeTitle
	default:
		return typeTitle + " / " + methodTitle
	}
}
