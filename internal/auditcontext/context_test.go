package auditcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithUserAgent(ctx, "")
	ctx = WithActor(ctx, "user", "42")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "10.0.0.1", IPAddressFromContext(ctx))
	assert.Empty(t, UserAgentFromContext(ctx))

	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "user", actorType)
	assert.Equal(t, "42", actorID)
}
