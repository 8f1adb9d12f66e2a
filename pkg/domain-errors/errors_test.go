package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("pq: connection refused")
	inner := Wrap(base, CodeUnavailable, "store unreachable")
	outer := Wrap(fmt.Errorf("lookup: %w", inner), CodeInternal, "failed to resolve status")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.ErrorIs(t, outer, base)
}

func TestIsChecksOutermostCode(t *testing.T) {
	err := Wrap(New(CodeNotFound, "status not found"), CodeInternal, "wrapped")

	assert.True(t, Is(err, CodeInternal))
	assert.False(t, Is(err, CodeNotFound))
	assert.False(t, Is(errors.New("plain"), CodeInternal))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeValidation, CodeOf(New(CodeValidation, "locale is required")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(errors.New("boom"), CodeInternal, "create status")
	assert.Equal(t, "create status: boom", err.Error())
	assert.Equal(t, "bad input", New(CodeBadRequest, "bad input").Error())
}
