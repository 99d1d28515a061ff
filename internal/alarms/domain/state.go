// Package alarms holds the edge-triggered alert state and the alert payload.
package alarms

import (
	"sort"

	"hvac-insight/internal/analytics/domain/rules"
	"hvac-insight/internal/analytics/domain/summary"
)

// Status is the state of one fault type.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
)

// AlertState is the active flag per fault type. The zero value is all inactive.
// It is a value: Step returns a new state and never mutates its input.
type AlertState struct {
	active map[rules.FaultType]bool
}

// NewAlertState returns an all-inactive state.
func NewAlertState() AlertState {
	return AlertState{}
}

// Active reports whether a fault type is currently active.
func (s AlertState) Active(faultType rules.FaultType) bool {
	return s.active[faultType]
}

// Status returns the state of a fault type.
func (s AlertState) Status(faultType rules.FaultType) Status {
	if s.Active(faultType) {
		return StatusActive
	}
	return StatusInactive
}

// Clone returns an independent copy.
func (s AlertState) Clone() AlertState {
	out := AlertState{active: make(map[rules.FaultType]bool, len(s.active))}
	for faultType, active := range s.active {
		out.active[faultType] = active
	}
	return out
}

// Snapshot returns the status of every known fault type.
func (s AlertState) Snapshot() map[rules.FaultType]Status {
	out := make(map[rules.FaultType]Status, len(rules.FaultTypes))
	for _, faultType := range rules.FaultTypes {
		out[faultType] = s.Status(faultType)
	}
	return out
}

// Transition records a state change. Fire is set only on inactive to active.
type Transition struct {
	FaultType rules.FaultType
	From      Status
	To        Status
	Fire      bool
}

// Step applies this cycle's predicates. Fault types missing from predicates keep their state.
// Transitions are returned in fault type order.
func Step(state AlertState, predicates map[rules.FaultType]bool) (AlertState, []Transition) {
	next := state.Clone()
	types := make([]rules.FaultType, 0, len(predicates))
	for faultType := range predicates {
		types = append(types, faultType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var transitions []Transition
	for _, faultType := range types {
		was := state.Active(faultType)
		now := predicates[faultType]
		next.active[faultType] = now
		if was == now {
			continue
		}
		t := Transition{FaultType: faultType, From: statusOf(was), To: statusOf(now), Fire: now}
		transitions = append(transitions, t)
	}
	return next, transitions
}

// Fired filters the transitions that require a dispatch.
func Fired(transitions []Transition) []rules.FaultType {
	var out []rules.FaultType
	for _, t := range transitions {
		if t.Fire {
			out = append(out, t.FaultType)
		}
	}
	return out
}

// Met reports whether a summary satisfies an alert trigger.
func Met(trigger rules.AlertTrigger, s summary.TypeSummary) bool {
	return s.Count >= trigger.MinCount && s.TotalCost >= trigger.MinCost
}

// Conditions evaluates the trigger of every available fault type in the report.
// A trigger with zero thresholds still requires at least one fault.
func Conditions(report summary.Report, triggers rules.Triggers) map[rules.FaultType]bool {
	out := make(map[rules.FaultType]bool, len(report.Types))
	for _, s := range report.Types {
		if !s.Available {
			continue
		}
		trigger := triggers.For(s.FaultType)
		out[s.FaultType] = s.Count > 0 && Met(trigger, s)
	}
	return out
}

func statusOf(active bool) Status {
	if active {
		return StatusActive
	}
	return StatusInactive
}
