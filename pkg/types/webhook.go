package types

type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
	WebhookEventStatusIgnored   WebhookEventStatus = "ignored"
)

// Provider event types the reconciler knows how to handle. Anything else
// is recorded and marked ignored.
const (
	EventTypeCheckoutCompleted = "checkout.session.completed"
	EventTypePaymentSucceeded  = "payment_intent.succeeded"
	EventTypePaymentFailed     = "payment_intent.payment_failed"
	EventTypeDisputeCreated    = "charge.dispute.created"
)

// Required metadata keys on provider objects that correlate events back
// to local records.
const (
	MetadataKeyPaymentID      = "payment_id"
	MetadataKeySubscriptionID = "subscription_id"
	MetadataKeyUserID         = "user_id"
)
