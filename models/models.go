package models

// All returns every table the affiliate core owns, in migration order.
// The users table belongs to the account subsystem and is not included.
func All() []interface{} {
	return []interface{}{
		&AffiliateLink{},
		&AffiliateVisit{},
		&RosterEntry{},
		&Referral{},
		&Reward{},
	}
}
