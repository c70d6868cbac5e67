package loadout

import (
	"fmt"
	"strings"
)

// Failure is one component that could not be equipped or configured.
type Failure struct {
	Component string `json:"component"`
	Phase     Phase  `json:"phase"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s (%s): %s", f.Component, f.Phase, f.Reason)
}

// PartialEquipError aggregates what a run could not do.
type PartialEquipError struct {
	Loadout string
	Missing []string
	Failed  []Failure
}

func (e *PartialEquipError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Failed) > 0 {
		items := make([]string, len(e.Failed))
		for i, f := range e.Failed {
			items[i] = f.String()
		}
		parts = append(parts, fmt.Sprintf("failed %s", strings.Join(items, "; ")))
	}
	return fmt.Sprintf("loadout %q incomplete: %s", e.Loadout, strings.Join(parts, "; "))
}

func (e *PartialEquipError) ErrorKind() string {
	if len(e.Missing) > 0 {
		return "missing"
	}
	return "partial_equip"
}

// Unwrap exposes the underlying failure causes.
func (e *PartialEquipError) Unwrap() []error {
	var out []error
	for _, f := range e.Failed {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
