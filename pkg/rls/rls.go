package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant scopes the current PostgreSQL transaction to tenantID for row-level security policies.
// Other dialects have no session variables and are left untouched.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_org_id', ?, true)",
		fmt.Sprintf("%d", tenantID),
	).Error
}
