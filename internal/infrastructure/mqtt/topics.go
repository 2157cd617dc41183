package mqtt

// TopicPrefix is the root of every hub topic.
const TopicPrefix = "graylogic/hub"

// Topics provides builders for hub MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Cache() // "graylogic/hub/cache"
type Topics struct{}

// Status returns the retained online/offline topic. It also carries the
// Last Will.
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Cache returns the retained topic describing the current snapshot.
func (Topics) Cache() string {
	return TopicPrefix + "/cache"
}

// Matches returns the topic carrying one summary per matched batch.
func (Topics) Matches() string {
	return TopicPrefix + "/matches"
}

// Refresh returns the command topic that requests a background refresh.
func (Topics) Refresh() string {
	return TopicPrefix + "/refresh"
}

// All returns a wildcard covering every hub topic.
func (Topics) All() string {
	return TopicPrefix + "/#"
}
