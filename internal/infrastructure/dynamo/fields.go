package dynamo

// DynamoDB attribute names used in key and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmail             = "email"
	fieldID                = "id"
	fieldPasswordDigest    = "password_digest"
	fieldVerified          = "verified"
	fieldRegisteredAt      = "registered_at"
	fieldSubscriptionLevel = "subscription_level"
	fieldCreatedAt         = "created_at"
	fieldExpiresAt         = "expires_at"
	fieldLevel             = "level"
	fieldIdentityID        = "identity_id"
	fieldRequestsMade      = "requests_made"
	fieldLastRequestAt     = "last_request_at"

	idIndex = "id-index"
)
