// Package mqtt provides MQTT client connectivity for the Aduro bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - An availability topic backed by a Last Will and Testament
//   - Enumeration of retained messages within a bounded window
//
// # Architecture
//
// The broker is the only channel between the bridge and the home-automation
// platform. Discovery documents are stored on it as retained messages and
// refreshed appliance state flows through it as plain state topics.
//
//	Appliance tool -> Aduro bridge <-> MQTT Broker <-> Home-automation platform
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	topics := mqtt.Topics{Base: "aduro2mqtt"}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.CommandTopic(), 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s", payload)
//	        return nil
//	    })
//
//	docs, err := client.CollectRetained(ctx, "homeassistant/#", 2*time.Second, nil)
package mqtt
