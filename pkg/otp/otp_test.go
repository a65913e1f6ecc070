package otp

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := Generate(6)
		require.NoError(t, err)
		assert.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}

	_, err := Generate(0)
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	e := NewEngine("pepper", 6, 0)

	assert.Equal(t, e.Hash("123456"), e.Hash("123456"))
	assert.NotEqual(t, e.Hash("123456"), e.Hash("123457"))
	assert.NotEqual(t, e.Hash("123456"), NewEngine("other", 6, 0).Hash("123456"))
	assert.Len(t, e.Hash("123456"), 64)
	assert.True(t, e.Matches("123456", e.Hash("123456")))
	assert.False(t, e.Matches("654321", e.Hash("123456")))
}

func TestVerify(t *testing.T) {
	e := NewEngine("pepper", 6, 10*time.Minute)
	issuedAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	code, state, err := e.Issue(issuedAt)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(10*time.Minute), state.Expiry)
	assert.NotEqual(t, code, state.Hash)

	t.Run("Success", func(t *testing.T) {
		assert.NoError(t, e.Verify(state, code, issuedAt.Add(5*time.Minute)))
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.ErrorIs(t, e.Verify(state, "000000", issuedAt.Add(time.Minute)), ErrInvalid)
	})

	t.Run("Expired", func(t *testing.T) {
		err := e.Verify(state, code, issuedAt.Add(11*time.Minute))
		assert.ErrorIs(t, err, ErrExpired)
		assert.True(t, MustClear(err))
	})

	t.Run("Not Requested", func(t *testing.T) {
		assert.ErrorIs(t, e.Verify(State{}, code, issuedAt), ErrNotRequested)
	})

	t.Run("Reissue Replaces Previous Code", func(t *testing.T) {
		second, newState, err := e.Issue(issuedAt)
		require.NoError(t, err)
		if second != code {
			assert.ErrorIs(t, e.Verify(newState, code, issuedAt), ErrInvalid)
		}
		assert.NoError(t, e.Verify(newState, second, issuedAt))
	})
}

func TestMustClear(t *testing.T) {
	assert.True(t, MustClear(nil))
	assert.True(t, MustClear(ErrExpired))
	assert.False(t, MustClear(ErrInvalid))
	assert.False(t, MustClear(ErrNotRequested))
}
