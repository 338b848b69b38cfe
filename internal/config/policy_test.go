package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultWorkspacePolicy(t *testing.T) {
	policy := DefaultWorkspacePolicy()

	assert.Equal(t, 7*24*time.Hour, policy.InvitationTTL)
	assert.Equal(t, 200, policy.TaskTitleMaxLength)
	assert.NoError(t, validatePolicy(policy))
	assert.True(t, policy.AllowsLogo("building-2"))
	assert.False(t, policy.AllowsLogo("rocket"))
}

func TestValidatePolicy(t *testing.T) {
	policy := DefaultWorkspacePolicy()
	policy.LogoKeys = nil
	assert.Error(t, validatePolicy(policy))

	policy = DefaultWorkspacePolicy()
	policy.InvitationTTL = 0
	assert.Error(t, validatePolicy(policy))
}

func TestGetenvDuration(t *testing.T) {
	t.Setenv("TASKHUB_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getenvDuration("TASKHUB_TEST_DURATION", time.Second))

	t.Setenv("TASKHUB_TEST_DURATION", "nope")
	assert.Equal(t, time.Second, getenvDuration("TASKHUB_TEST_DURATION", time.Second))
}
