package models

// Plan tiers. Anything that is not an active pro/power subscription
// degrades to free.
const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanPower = "power"
)

// Unlimited marks a plan limit with no ceiling. A negative sentinel is used
// instead of a float infinity so limits stay plain ints in SQL and JSON.
const Unlimited = -1

type PlanLimits struct {
	HumanizerCreditsPerWeek int `json:"humanizer_credits_per_week"`
	MaxDocumentLength       int `json:"max_document_length"`
	TotalDocuments          int `json:"total_documents"`
}

// IsUnlimited reports whether a limit value means "no ceiling".
func IsUnlimited(limit int) bool {
	return limit < 0
}

// DefaultPlanLimits returns the per-tier ceilings. Consumed as configuration
// by the entitlement gate, never hardcoded in the humanizer core.
func DefaultPlanLimits() map[string]PlanLimits {
	return map[string]PlanLimits{
		PlanFree: {
			HumanizerCreditsPerWeek: 20,
			MaxDocumentLength:       5000,
			TotalDocuments:          10,
		},
		PlanPro: {
			HumanizerCreditsPerWeek: 200,
			MaxDocumentLength:       25000,
			TotalDocuments:          200,
		},
		PlanPower: {
			HumanizerCreditsPerWeek: Unlimited,
			MaxDocumentLength:       100000,
			TotalDocuments:          Unlimited,
		},
	}
}
