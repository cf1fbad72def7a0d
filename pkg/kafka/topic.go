package kafka

// TopicPrefix namespaces every topic this service publishes.
const TopicPrefix = "ecobazaar"

// Topic builds "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
