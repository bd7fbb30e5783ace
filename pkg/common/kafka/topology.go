package kafka

// Channel names are a fixed contract shared with the orchestrator and any
// external publisher. Each channel has a durable topic and a matching
// dead-letter topic; messages that exhaust the consumer's retry budget are
// parked on the dead-letter topic for manual replay.
const (
	ScrapeChannel = "scrape"
	EmailChannel  = "email"

	dlqSuffix = ".dlq"
)

// DLQTopic returns the dead-letter topic for a channel.
func DLQTopic(channel string) string {
	return channel + dlqSuffix
}
