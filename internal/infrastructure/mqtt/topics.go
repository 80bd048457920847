package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "erp/auth"

// Topics builds topic names under a deployment prefix.
//
//	topics := mqtt.NewTopics("erp/auth")
//	topics.SecurityEvent("account_locked") // "erp/auth/events/account_locked"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix, trimming slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// ServiceStatus is the retained online/offline topic.
func (t Topics) ServiceStatus() string {
	return t.base() + "/status"
}

// SecurityEvent is the topic for one security event type.
func (t Topics) SecurityEvent(eventType string) string {
	return t.base() + "/events/" + eventType
}

// AllSecurityEvents is a subscription filter matching every event type.
func (t Topics) AllSecurityEvents() string {
	return t.base() + "/events/+"
}

func (t Topics) base() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}
