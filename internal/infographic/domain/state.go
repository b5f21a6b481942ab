package domain

import (
	"encoding/json"
	"fmt"
)

// Session state only holds JSON-compatible values so that every store
// round-trips it identically. Scripts are stored in their JSON map form.

// PhaseOf returns the phase recorded in state, or PhaseInit.
func PhaseOf(state map[string]any) Phase {
	if v, ok := state[StateKeyPhase].(string); ok && v != "" {
		return Phase(v)
	}
	return PhaseInit
}

// ScriptFromState decodes the script held in state, if any.
func ScriptFromState(state map[string]any) (*Script, bool, error) {
	raw, ok := state[StateKeyScript]
	if !ok || raw == nil {
		return nil, false, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode stored script: %w", err)
	}
	var s Script
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, false, fmt.Errorf("failed to decode stored script: %w", err)
	}
	if len(s.Slides) == 0 {
		return nil, false, nil
	}
	return &s, true, nil
}

// ScriptToState converts a script to its storable map form.
func ScriptToState(s *Script) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	return m, nil
}

// ScriptFromMap decodes a script from a generic JSON object.
func ScriptFromMap(m map[string]any) (*Script, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script object: %w", err)
	}
	var s Script
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode script object: %w", err)
	}
	return &s, nil
}

// CopyState returns a shallow copy of state.
func CopyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state)+3)
	for k, v := range state {
		out[k] = v
	}
	return out
}
