package enums

// CheckoutOutcome summarizes one checkout invocation.
type CheckoutOutcome string

const (
	CheckoutOutcomeEmpty   CheckoutOutcome = "EMPTY"
	CheckoutOutcomeSuccess CheckoutOutcome = "SUCCESS"
	CheckoutOutcomePartial CheckoutOutcome = "PARTIAL"
	CheckoutOutcomeFailure CheckoutOutcome = "FAILURE"
)

var validCheckoutOutcomes = []CheckoutOutcome{
	CheckoutOutcomeEmpty,
	CheckoutOutcomeSuccess,
	CheckoutOutcomePartial,
	CheckoutOutcomeFailure,
}

// String implements fmt.Stringer.
func (c CheckoutOutcome) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c CheckoutOutcome) IsValid() bool {
	for _, candidate := range validCheckoutOutcomes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ClearsCart reports whether every attempted line left the cart.
func (c CheckoutOutcome) ClearsCart() bool {
	return c == CheckoutOutcomeSuccess
}

// CheckoutOutcomeFor folds per-item counts into an outcome.
func CheckoutOutcomeFor(succeeded, failed int) CheckoutOutcome {
	switch {
	case succeeded == 0 && failed == 0:
		return CheckoutOutcomeEmpty
	case failed == 0:
		return CheckoutOutcomeSuccess
	case succeeded == 0:
		return CheckoutOutcomeFailure
	default:
		return CheckoutOutcomePartial
	}
}
