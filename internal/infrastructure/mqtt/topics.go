package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "rx380"

// Topics builds the topic names for one meter.
//
//	topics := mqtt.NewTopics("rx380", "main-incomer")
//	topics.Control() // "rx380/main-incomer/control"
type Topics struct {
	prefix string
	device string
}

// NewTopics creates topic builders for device under prefix.
// MQTT wildcard and separator characters in device are replaced with '_'.
func NewTopics(prefix, device string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		prefix: prefix,
		device: topicSegment.Replace(device),
	}
}

var topicSegment = strings.NewReplacer("/", "_", "+", "_", "#", "_")

func (t Topics) join(leaf string) string {
	return t.prefix + "/" + t.device + "/" + leaf
}

// Status is the retained online/offline topic, also used for the Last Will.
func (t Topics) Status() string { return t.join("status") }

// Reading receives one message per stored reading.
func (t Topics) Reading() string { return t.join("reading") }

// Latest holds the newest reading as a retained message.
func (t Topics) Latest() string { return t.join("latest") }

// Control receives operator commands.
func (t Topics) Control() string { return t.join("control") }
