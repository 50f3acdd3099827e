package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainVerifier(t *testing.T) {
	v := PlainVerifier{}

	sealed, err := v.Seal("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", sealed)

	assert.True(t, v.Verify("hunter2", sealed))
	assert.False(t, v.Verify("hunter3", sealed))
	assert.False(t, v.Verify("", sealed))
}

func TestBcryptVerifier(t *testing.T) {
	v := BcryptVerifier{Cost: 4} // min cost, keeps the test fast

	sealed, err := v.Seal("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", sealed)

	assert.True(t, v.Verify("hunter2", sealed))
	assert.False(t, v.Verify("hunter3", sealed))
}
