// Package mqtt provides MQTT client connectivity for IceTray.
//
// IceTray uses the broker to hand IceCube artifacts to the IOC hosts that
// run them: a host publishes a build request, IceTray answers with the
// generated record database and protocol file as retained messages.
//
//	IOC host ─ request ─▶ Broker ─▶ IceTray
//	IOC host ◀─ artifacts (retained) ─ Broker ◀─ IceTray
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after reconnect and a Last Will on the system status topic.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BuildRequest(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.Artifact("RPi1", mqtt.ArtifactDB), db, 1, true)
package mqtt
