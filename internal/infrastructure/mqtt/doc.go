// Package mqtt provides MQTT client connectivity for the sensor daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - A retained status topic with Last Will and Testament
//
// # Architecture
//
// The daemon publishes sensor readings, per-device availability and
// discovery configs; a downstream consumer (Gray Logic Core, Home Assistant)
// subscribes to them.
//
//	sensord → MQTT Broker → Core / Home Assistant
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.StatusMessages{
//	    Topic:   "graylogic/sensors/mithermometer/health",
//	    Online:  onlinePayload,
//	    Offline: lwtPayload,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Publish("graylogic/sensors/mithermometer/kitchen", payload, 1, false)
package mqtt
