// Package mqtt publishes the portal's auth events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing auth events under bulles/auth/event/{action}
//   - Last Will and Testament (LWT) on bulles/system/status
//   - Connection health monitoring
//
// MQTT is optional. When mqtt.enabled is false the server never connects
// and auth events only reach the audit log.
//
// # Security Considerations
//
//   - Event payloads carry usernames and session ids, never tokens or hashes
//   - TLS is required for brokers outside the school network (cfg.Broker.TLS=true)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.AuthEvent("LOGIN_SUCCESS"), event)
package mqtt
