package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseOf(t *testing.T) {
	assert.Equal(t, PhaseInit, PhaseOf(nil))
	assert.Equal(t, PhaseInit, PhaseOf(map[string]any{StateKeyPhase: ""}))
	assert.Equal(t, PhaseInit, PhaseOf(map[string]any{StateKeyPhase: 3}))
	assert.Equal(t, PhaseRendering, PhaseOf(map[string]any{StateKeyPhase: "rendering"}))
}

func TestScriptStateRoundTrip(t *testing.T) {
	script := &Script{
		GlobalSettings: GlobalSettings{AspectRatio: "16:9"},
		Slides: []Slide{
			{ID: "s1", Title: "Intro", ImagePath: "users/u/projects/p/slides/s1.png", Status: SlideSuccess},
		},
	}
	m, err := ScriptToState(script)
	require.NoError(t, err)

	got, ok, err := ScriptFromState(map[string]any{StateKeyScript: m})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, script, got)
}

func TestScriptFromStateEmpty(t *testing.T) {
	_, ok, err := ScriptFromState(map[string]any{})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ScriptFromState(map[string]any{StateKeyScript: map[string]any{"slides": []any{}}})
	require.NoError(t, err)
	assert.False(t, ok, "a script without slides counts as absent")

	_, _, err = ScriptFromState(map[string]any{StateKeyScript: "not a script"})
	assert.Error(t, err)
}

func TestCopyStateIsShallow(t *testing.T) {
	src := map[string]any{StateKeyPhase: "planning"}
	dst := CopyState(src)
	dst[StateKeyPhase] = "failed"
	assert.Equal(t, "planning", src[StateKeyPhase])
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"wrapped", Wrap(CategoryPersistence, "save", errors.New("conn refused")), CategoryPersistence},
		{"wrapped twice", fmt.Errorf("outer: %w", Wrap(CategoryAuth, "key", errors.New("x"))), CategoryAuth},
		{"no structured output", fmt.Errorf("parse: %w", ErrNoStructuredOutput), CategorySemantic},
		{"missing credential", ErrMissingCredential, CategoryAuth},
		{"permission", ErrPermissionDenied, CategoryAuth},
		{"no script", ErrNoScript, CategoryValidation},
		{"invalid phase", ErrInvalidPhase, CategoryValidation},
		{"unknown", errors.New("boom"), CategoryTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(CategoryTransient, "op", nil))

	err := Wrap(CategoryValidation, "validate request", ErrNoScript)
	assert.ErrorIs(t, err, ErrNoScript)
	assert.Equal(t, "validate request: no script available", err.Error())
}
