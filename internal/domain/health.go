package domain

// HealthTier is the payment-health classification of a loan or client.
type HealthTier string

const (
	HealthCurrent    HealthTier = "CURRENT"
	HealthLate       HealthTier = "LATE"
	HealthDelinquent HealthTier = "DELINQUENT"
)

// Severity orders tiers from best to worst.
func (t HealthTier) Severity() int {
	switch t {
	case HealthLate:
		return 1
	case HealthDelinquent:
		return 2
	default:
		return 0
	}
}
