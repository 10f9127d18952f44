package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ctx"))
	assert.NoError(t, Wrapf(nil, "id %d", 1))

	base := errors.New("dial refused")
	wrapped := Wrap(base, "probe")
	assert.Equal(t, "probe: dial refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)

	formatted := Wrapf(base, "attempt %d", 3)
	assert.Equal(t, "attempt 3: dial refused", formatted.Error())
}

func TestCodedError(t *testing.T) {
	assert.NoError(t, WithCode(nil, "X"))

	coded := WithCode(ErrTimeout, "RETRY_EXHAUSTED")
	assert.Equal(t, "[RETRY_EXHAUSTED] timeout", coded.Error())
	assert.Equal(t, "RETRY_EXHAUSTED", GetCode(Wrap(coded, "get /items")))
	assert.ErrorIs(t, coded, ErrTimeout)
	assert.Empty(t, GetCode(ErrTimeout))

	assert.Equal(t, "[BARE]", (&CodedError{Code: "BARE"}).Error())
}

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine())
	assert.NoError(t, Combine(nil, nil))

	e1 := errors.New("one")
	assert.Same(t, e1, Combine(nil, e1))

	e2 := errors.New("two")
	combined := Combine(e1, nil, e2)
	var multi *MultiError
	require.ErrorAs(t, combined, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.ErrorIs(t, combined, e1)
	assert.ErrorIs(t, combined, e2)
	assert.Equal(t, "one (and 1 more errors)", combined.Error())
}

func TestMust(t *testing.T) {
	assert.Equal(t, 7, Must(7, nil))
	assert.Panics(t, func() { Must(0, ErrClosed) })
}
