// Package mqtt publishes security events from the ERP auth service to an
// MQTT broker.
//
// Downstream consumers (SIEM bridges, alerting, the factory gate display)
// subscribe to:
//
//	erp/auth/status            retained online/offline (with last will)
//	erp/auth/events/{type}     one message per security event
//
// The client never subscribes. Publishing is best-effort from the caller's
// point of view: the auth pipeline never waits on, or changes its decision
// because of, a failed publish.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(client.Topics().SecurityEvent("account_locked"), event)
package mqtt
