package geoerr

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestNotFound_MatchesCategory(t *testing.T) {
	err := NotFound("workspace: describe", "dataset %q", "Counties")

	assert.True(t, errors.Is(err, ErrInputNotFound))
	assert.False(t, errors.Is(err, ErrSchemaMismatch))
	assert.Equal(t, "input_not_found", KindOf(err))
	assert.Contains(t, err.Error(), "Counties")
}

func TestSchema_SurvivesWrap(t *testing.T) {
	err := eris.Wrap(Schema("fieldmap: normalize", "missing %s", "Polygon_Count"), "sows: normalize")

	assert.True(t, eris.Is(err, ErrSchemaMismatch))
	assert.Equal(t, "schema_mismatch", KindOf(err))
}

func TestEngine_WrapsPlainError(t *testing.T) {
	cause := errors.New("disk full")
	err := Engine("SummarizeWithin", cause)

	assert.True(t, errors.Is(err, ErrEngine))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "engine_failure", KindOf(err))
}

func TestEngine_KeepsExistingCategory(t *testing.T) {
	err := Engine("Snap", NotFound("workspace: read", "dataset %q", "shore"))

	assert.True(t, errors.Is(err, ErrInputNotFound))
	assert.False(t, errors.Is(err, ErrEngine))
}

func TestEngine_Nil(t *testing.T) {
	assert.NoError(t, Engine("Snap", nil))
	assert.Equal(t, "", KindOf(nil))
	assert.Equal(t, "", KindOf(errors.New("plain")))
}
