package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilCause(t *testing.T) {
	assert.Nil(t, Transient(nil))
}

func TestClassified_UnwrapAndIs(t *testing.T) {
	sentinel := errors.New("boom")
	err := Transient(sentinel)

	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, IsTransient(err))
	assert.False(t, Is(err, KindPermanent))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindTransient, kind)
}

func TestClassified_Error(t *testing.T) {
	err := Permanent(errors.New("bad request"))
	assert.Equal(t, "permanent: bad request", err.Error())
}

func TestKindOf_UnclassifiedError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestConfigurationf(t *testing.T) {
	err := Configurationf("missing field %q", "origin_path")
	assert.True(t, Is(err, KindConfiguration))
	assert.Equal(t, "configuration: missing field \"origin_path\"", err.Error())
}

func TestWrappingPreservesKindThroughFmtErrorf(t *testing.T) {
	inner := ContextLengthExceeded(errors.New("too many tokens"))
	wrapped := fmt.Errorf("embedding batch 3: %w", inner)

	assert.True(t, Is(wrapped, KindContextLengthExceeded))
}
