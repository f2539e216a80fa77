package fault

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validationf("missing value for %q", "date")))
	assert.Equal(t, KindConflict, KindOf(Conflictf("no edits detected")))
	assert.Equal(t, KindNotFound, KindOf(NotFoundf("entity %s not found", "ZZ")))
	assert.Equal(t, KindStore, KindOf(Store(errors.New("disk full"), "commit")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Nil(t, Store(nil, "noop"))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := eris.Wrap(Conflictf("batch %d already published", 7), "publish")
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "already published")
}

func TestStoreWrapsCause(t *testing.T) {
	cause := errors.New("constraint failed")
	err := Store(cause, "insert fact")
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "insert fact")
	assert.Contains(t, err.Error(), "constraint failed")
}
