// Package mqtt connects the RX380 logger to an MQTT broker.
//
// One connection serves three purposes:
//   - the MQTT sink publishes each reading and a retained latest reading
//   - the control source subscribes to the device's control topic
//   - a retained status topic reports online/offline, with a Last Will
//     so subscribers see "offline" when the process dies
//
// # Topics
//
// All topics live under <prefix>/<device>/ (prefix defaults to "rx380"):
//
//	rx380/main-incomer/status    retained online/offline JSON
//	rx380/main-incomer/reading   one JSON message per reading
//	rx380/main-incomer/latest    retained newest reading
//	rx380/main-incomer/control   pause | resume | quit
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.Meter.DeviceName)
//	client, err := mqtt.Connect(cfg.MQTT, topics, runID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish(ctx, topics.Reading(), payload, false)
//
// Publish and Subscribe wait for the broker's acknowledgement, bounded by
// the caller's context and a fixed timeout. Subscriptions are restored
// after an automatic reconnect.
package mqtt
