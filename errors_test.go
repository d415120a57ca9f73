package hat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorSentinelsMatchViaErrorsIs(t *testing.T) {
	assert.True(t, errors.Is(NewDimensionMismatch(3, 4), ErrDimensionMismatch))
	assert.True(t, errors.Is(NewBusy(), ErrBusy))
	assert.True(t, errors.Is(NewBadMagic([4]byte{'X', 'X', 'X', 'X'}), ErrBadMagic))
	assert.True(t, errors.Is(NewUnsupportedVersion(2), ErrUnsupportedVersion))
	assert.True(t, errors.Is(NewCorrupt("bad"), ErrCorrupt))
}

func TestErrorAsExposesCode(t *testing.T) {
	var herr *Error
	err := NewDimensionMismatch(3, 4)
	assert.True(t, errors.As(err, &herr))
	assert.Equal(t, DimensionMismatch, herr.Code)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "DimensionMismatch", DimensionMismatch.String())
	assert.Equal(t, "Unknown", ErrorCode(99).String())
}
