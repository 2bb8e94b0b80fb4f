package engine

import (
	"github.com/everkeep/email-retry-system/internal/domain"
)

// Policy maps an email type to its maximum retry count. It is injected at
// construction so tests and deployments can substitute custom budgets.
type Policy map[domain.EmailType]int

// defaultLimit applies to email types the policy does not mention:
// fail closed with a single retry.
const defaultLimit = 1

// DefaultPolicy returns the standard retry budgets. Disclosure emails are
// the product's critical deliveries and get the most attempts; admin
// notifications are operational noise and get the fewest.
func DefaultPolicy() Policy {
	return Policy{
		domain.TypeDisclosure:        5,
		domain.TypeReminder:          3,
		domain.TypeVerification:      2,
		domain.TypeAdminNotification: 1,
	}
}

// Limit returns the maximum retry count for the given email type.
func (p Policy) Limit(t domain.EmailType) int {
	if n, ok := p[t]; ok {
		return n
	}
	return defaultLimit
}
