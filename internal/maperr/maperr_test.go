package maperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode errbuilder.ErrCode
	}{
		{"configuration", Configuration("bad ramp for %s", "niveauVie"), KindConfiguration, errbuilder.CodeInvalidArgument},
		{"not ready", NotReady("canvas loading"), KindNotReady, errbuilder.CodeFailedPrecondition},
		{"not found", NotFound("layer %q", "nope"), KindNotFound, errbuilder.CodeNotFound},
		{"interaction", Interaction("missing id"), KindInteraction, errbuilder.CodeInvalidArgument},
		{"internal", Internal(errors.New("boom"), "canvas"), KindInternal, errbuilder.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, KindOf(tt.err))
			assert.Equal(t, tt.wantCode, errbuilder.CodeOf(tt.err))
			assert.True(t, Is(tt.err, tt.wantKind))
		})
	}
}

func TestWrappedKindSurvives(t *testing.T) {
	err := fmt.Errorf("activate: %w", NotFound("layer %q", "nope"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, `layer "nope"`, Message(err))
}

func TestUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindInternal))
	require.Equal(t, "plain", Message(errors.New("plain")))
}
