// Package mqtt provides the MQTT client the gateway uses to mirror telemetry
// to the analytics broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and a bounded wait for acknowledgement
//   - A retained gateway status topic with Last Will and Testament
//
// Topics are built from a configurable prefix:
//
//	smarthome/devices/telemetry
//	smarthome/sensors/environmental
//	smarthome/sensors/lighting
//	smarthome/gateway/{client_id}/status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Broker.TopicPrefix)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Channel("devices/telemetry")
//	err = client.PublishQoS(ctx, topic, payload)
//
// Use TLS (mqtt.broker.tls) and broker ACLs outside local development.
package mqtt
