package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataStoreErrorKindOf(t *testing.T) {
	err := NewError(ErrKindNotFound, "system 42 not found")
	assert.Equal(t, ErrKindNotFound, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAlreadyExists(err))
}

func TestDataStoreErrorWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := WrapError(ErrKindDataStore, "flush failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrKindDataStore, KindOf(err))
}

func TestDataStoreErrorIsMatchesByKindOnly(t *testing.T) {
	err := NewError(ErrKindNotFound, "foi 7 not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAlreadyExists))
}

func TestKindOfUnwrappedErrorIsUnknown(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain error")))
}
