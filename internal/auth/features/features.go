package features

// ImplementedAuthFeatures is the source of truth for auth features available at runtime.
// Every social provider goes through the generic authorization-code flow.
var ImplementedAuthFeatures = map[string]bool{
	"oauth":  true,
	"github": true,
	"google": true,
}
