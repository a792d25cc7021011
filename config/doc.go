// Package config loads pipeline definitions.
//
// A definition names the pipeline, lists the elements to create by component ID
// with their properties, and the links between them. It also carries the metrics
// endpoint and the NATS connection used to forward notifications.
//
// # File format
//
// Files are YAML (.yaml, .yml) or JSON (.json); the extension decides. Durations
// are Go duration strings.
//
//	pipeline:
//	  name: camera
//	  send_timeout: 3s
//	metrics:
//	  enabled: true
//	  addr: ":9090"
//	nats:
//	  urls: ["nats://localhost:4222"]
//	  subject_prefix: jukey
//	elements:
//	  - name: src
//	    component: test-source
//	    properties:
//	      pixel_format: I420
//	      fps: 30
//	  - name: render
//	    component: video-player
//	links:
//	  - source: src
//	    sink: render
//	    auto: true
//
// # Layers and environment
//
// Loader merges several files in order (base + overrides) on top of the defaults,
// then applies JUKEY_* environment variables: JUKEY_PIPELINE_NAME,
// JUKEY_SEND_TIMEOUT, JUKEY_METRICS_ADDR, JUKEY_NATS_URLS (comma separated),
// JUKEY_NATS_USERNAME, JUKEY_NATS_PASSWORD and JUKEY_NATS_TOKEN.
//
//	loader := config.NewLoader()
//	loader.AddLayer("pipelines/base.yaml")
//	loader.AddLayer("pipelines/studio.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Thread Safety
//
// SafeConfig wraps a Config behind an RWMutex and hands out deep copies.
package config
