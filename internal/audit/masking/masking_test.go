package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "b****@x.com", MaskEmail("b@x.com"))
	assert.Equal(t, "a****@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "****", MaskEmail("abc"))
}

func TestMaskMetadata(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"email":  "alice@example.com",
		"role":   "admin",
		"token":  "abcdef123456",
		"nested": map[string]any{"invitee_email": "bob@example.com"},
		"":       "dropped",
	})
	assert.Equal(t, "a****@example.com", out["email"])
	assert.Equal(t, "admin", out["role"])
	assert.Equal(t, "****3456", out["token"])
	assert.Equal(t, map[string]any{"invitee_email": "b****@example.com"}, out["nested"])
	assert.NotContains(t, out, "")
}
