package lock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardTokens(t *testing.T) {
	var g Guard

	err := g.Read(func(rt ReadToken) error {
		assert.NoError(t, CheckRead(rt))
		return nil
	})
	require.NoError(t, err)

	err = g.Write(func(wt WriteToken) error {
		assert.NoError(t, CheckWrite(wt))
		// A write token is also a read token.
		assert.NoError(t, CheckRead(wt))
		return nil
	})
	require.NoError(t, err)
}

func TestMissingTokens(t *testing.T) {
	assert.ErrorIs(t, CheckRead(nil), ErrNoReadAccess)
	assert.ErrorIs(t, CheckWrite(nil), ErrNoWriteAccess)
}

func TestGuardPropagatesError(t *testing.T) {
	var g Guard
	boom := errors.New("boom")
	err := g.Write(func(WriteToken) error { return boom })
	assert.ErrorIs(t, err, boom)
}
