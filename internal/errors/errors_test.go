package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"palin/domain/core"
)

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(core.NewMissingColumnError("pitch"), "kernel computation failed")

	assert.True(t, stderrors.Is(err, core.ErrMissingColumn))
	assert.Equal(t, CodeSchemaError, GetCode(err))
	assert.Contains(t, err.Error(), `"pitch"`)
}

func TestWrapKeepsInnerCode(t *testing.T) {
	inner := NotFound("CSV file a.csv")
	err := Wrapf(fmt.Errorf("reading: %w", inner), "loading %d files", 3)

	assert.Equal(t, CodeNotFound, GetCode(err))
	assert.True(t, IsAppError(err))
	assert.Equal(t, "loading 3 files: reading: CSV file a.csv not found", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "x"))
	assert.NoError(t, Wrapf(nil, "x %d", 1))
	assert.NoError(t, WithCode(CodeInternalError, nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
	assert.Equal(t, CodeSchemaError, GetCode(core.ErrInvalidConfig))
	assert.Equal(t, CodeConfigInvalid, GetCode(WithCode(CodeConfigInvalid, stderrors.New("bad"))))
	assert.Equal(t, CodeDatabaseError, GetCode(DatabaseError("insert failed", stderrors.New("locked"))))
}
