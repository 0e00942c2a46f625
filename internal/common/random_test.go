package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"zero", 0},
		{"nonce", 16},
		{"key", 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := MakeRandHexString(tt.size)
			require.NoError(t, err)
			assert.Len(t, s, tt.size*2)
			_, err = hex.DecodeString(s)
			assert.NoError(t, err)
		})
	}
}

func TestGenerateRandByteArray_Length(t *testing.T) {
	a := GenerateRandByteArray(32)
	b := GenerateRandByteArray(32)
	require.Len(t, a, 32)
	require.Len(t, b, 32)
	assert.NotEqual(t, a, b)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, buf)

	require.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reclaim: %w", fmt.Errorf("%w: %w", ErrClaimedByRecipient, ErrAlreadySpent))
	assert.True(t, errors.Is(err, ErrClaimedByRecipient))
	assert.True(t, errors.Is(err, ErrAlreadySpent))
	assert.False(t, errors.Is(err, ErrLockMismatch))
}
