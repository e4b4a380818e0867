package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMessageDigestOrSignature(t *testing.T) {
	sig, err := GetMessageDigestOrSignature([]byte("The quick brown fox jumps over the lazy dog"), []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", sig)

	_, err = GetMessageDigestOrSignature([]byte("x"), nil)
	assert.Error(t, err)
}
