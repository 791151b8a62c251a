package ledger

// Plan maps a subscription tier to the credits one paid invoice grants.
// Keep this small and stable: webhook and consumer paths both rely on it.
type Plan struct {
	Tier        string
	ServiceType string
	Credits     int
}

func PlanForTier(tier string) Plan {
	switch tier {
	case "exterior-monthly":
		return Plan{Tier: "exterior-monthly", ServiceType: "exterior", Credits: 4}
	case "exterior-biweekly":
		return Plan{Tier: "exterior-biweekly", ServiceType: "exterior", Credits: 2}
	case "interior-monthly":
		return Plan{Tier: "interior-monthly", ServiceType: "interior", Credits: 2}
	default:
		return Plan{Tier: tier}
	}
}

// Known reports whether the tier grants credits at all.
func (p Plan) Known() bool { return p.Credits > 0 && p.ServiceType != "" }
