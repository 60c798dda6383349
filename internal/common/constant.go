package common

// AdminSecretHeaderName is the HTTP header carrying the shared admin secret
// when the Authorization header is not used.
const AdminSecretHeaderName = "X-Admin-Secret"

// PaymentSettingsDefaultKey is the settings key used when an event has no
// payment_<slug> entry of its own.
const PaymentSettingsDefaultKey = "payment_default"

// CommunityLinksKey is the settings key holding the community links JSON.
const CommunityLinksKey = "community_links"
