package mqtt

import "strings"

// Topic prefixes. Every portal topic lives under "bulles".
const (
	TopicPrefix       = "bulles"
	TopicPrefixAuth   = TopicPrefix + "/auth"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for portal MQTT topics.
//
//	topic := mqtt.Topics{}.AuthEvent("LOGIN_SUCCESS")
//	// Returns: "bulles/auth/event/login_success"
type Topics struct{}

// AuthEvent returns the topic an auth action is published on. The action is
// lower-cased so subscribers can match on stable topic segments.
func (Topics) AuthEvent(action string) string {
	return TopicPrefixAuth + "/event/" + strings.ToLower(action)
}

// AllAuthEvents matches every auth event topic.
func (Topics) AllAuthEvents() string {
	return TopicPrefixAuth + "/event/+"
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
