package discovery

import "fmt"

// TopicNamer maps entities to discovery topics and unique ids.
//
// Both outputs are pure functions of the prefix, device id, kind and entity
// id, so a restart republishes onto the same retained topics.
type TopicNamer struct {
	prefix   string
	deviceID string
}

// NewTopicNamer creates a TopicNamer. prefix is the discovery namespace root.
func NewTopicNamer(prefix, deviceID string) TopicNamer {
	return TopicNamer{prefix: prefix, deviceID: deviceID}
}

// Prefix returns the discovery namespace root.
func (n TopicNamer) Prefix() string { return n.prefix }

// DeviceID returns the device id every unique id is derived from.
func (n TopicNamer) DeviceID() string { return n.deviceID }

// Topic returns <prefix>/<kind>/<deviceId>_<entityId>/config.
func (n TopicNamer) Topic(kind Kind, entityID string) string {
	return fmt.Sprintf("%s/%s/%s/config", n.prefix, kind, n.UniqueID(entityID))
}

// UniqueID returns <deviceId>_<entityId>.
func (n TopicNamer) UniqueID(entityID string) string {
	return n.deviceID + "_" + entityID
}

// Wildcard returns the filter covering every document under the prefix.
func (n TopicNamer) Wildcard() string {
	return n.prefix + "/#"
}
