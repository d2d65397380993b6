// ABOUTME: FruityPi wire protocol package
// ABOUTME: Defines color datagrams, JSON messages and the WebSocket client
// Package protocol implements the FruityPi wire protocol.
//
// Colors travel as 4-byte UDP datagrams ([0x01, R, G, B]) or as JSON
// color/override messages over WebSocket and MQTT.
//
// Example:
//
//	conn.Write(protocol.MarshalColor(c))
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "pi.local:7331"})
//	err := client.Connect()
//	err = client.SendColor(c)
package protocol
