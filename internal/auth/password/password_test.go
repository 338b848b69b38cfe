package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))

	assert.True(t, Verify("correct horse battery", encoded))
	assert.False(t, Verify("wrong horse battery", encoded))
	assert.False(t, Verify("correct horse battery", "$bcrypt$nope"))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate("short"), ErrTooShort)
	assert.ErrorIs(t, Validate(strings.Repeat("a", MaxLength+1)), ErrTooLong)
	assert.NoError(t, Validate("long enough"))
}
