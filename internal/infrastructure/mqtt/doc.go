// Package mqtt connects the hub to an MQTT broker.
//
// The hub is a peer on the same bus as the rest of Gray Logic. It
// announces itself on a retained status topic (with a Last Will for
// crashes), mirrors every cache refresh and match batch as JSON events,
// and accepts refresh commands from other services.
//
//	graylogic/hub/status   retained, online/offline
//	graylogic/hub/cache    retained, last refresh attempt
//	graylogic/hub/matches  one event per matched batch
//	graylogic/hub/refresh  command, triggers a background refresh
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewPublisher(client, cfg.Site.ID, byte(cfg.MQTT.QoS))
//	manager.AddObserver(pub)
//	matcher.AddObserver(pub)
//	err = pub.ListenForRefresh(func(string) { manager.RefreshBackground() })
package mqtt
