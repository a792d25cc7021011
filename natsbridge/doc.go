// Package natsbridge forwards pipeline notifications to NATS.
//
// Every forwarded notification becomes one JSON Envelope published on
// <prefix>.<pipeline>.<type>, for example jukey.camera.run_state. Payloads are the
// msgbus payload types encoded as JSON. Control requests are never forwarded.
//
//	conn, err := natsbridge.Connect(ctx, cfg.NATS, "jukey", logger, metricsRegistry)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	bridge := natsbridge.New(conn, natsbridge.WithSubjectPrefix(cfg.NATS.SubjectPrefix))
//	if err := bridge.Attach(p); err != nil {
//		return err
//	}
package natsbridge
