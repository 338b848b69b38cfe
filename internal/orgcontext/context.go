package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/taskhub/internal/observability/context"
)

// OrgContextKey is the request context key for the active organization ID.
type OrgContextKey struct{}

// WithOrgID stores the resolved org ID in the context. The id is mirrored
// into the observability context so request logs carry it.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	ctx = context.WithValue(ctx, OrgContextKey{}, orgID)
	return obscontext.WithOrgID(ctx, orgID.String())
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(OrgContextKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
