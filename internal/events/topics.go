package events

// Topic constants for domain events emitted by the service.
const (
	TopicRewardGranted     = "reward.granted"
	TopicRewardGrantFailed = "reward.grant_failed"
	TopicVoucherCreated    = "voucher.created"
	TopicVoucherUpdated    = "voucher.updated"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicRewardGranted,
		TopicRewardGrantFailed,
		TopicVoucherCreated,
		TopicVoucherUpdated,
	}
}
