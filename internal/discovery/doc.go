// Package discovery builds and manages the retained configuration documents
// that advertise the appliance's sensors and controls to the
// home-automation platform.
//
// # Components
//
//   - TopicNamer: canonical config topics and unique ids
//   - ExclusionFilter: the single gate every publish passes through
//   - Catalog: the fixed set of entities for the known appliance
//   - Inferencer: sensors synthesized from live telemetry
//   - SeenRegistry: run-scoped deduplication of inferred ids
//   - Lifecycle: publish, and retract stale documents on startup
//
// # Determinism
//
// Entity ids come from catalog keys or from (topic, key) pairs, and document
// keys are written in a fixed order. Publishing the same entity twice yields
// byte-identical payloads on the same topic, so a restart overwrites rather
// than duplicates.
//
// # Usage
//
//	namer := discovery.NewTopicNamer("homeassistant", "aduro_h2")
//	filter := discovery.NewExclusionFilter("aduro_h2", []string{"return_temp"})
//	lc := discovery.NewLifecycle(client, discovery.LifecycleOptions{
//	    Namer:  namer,
//	    Device: device,
//	    Filter: filter,
//	})
//	if _, err := lc.Cleanup(ctx, 2*time.Second); err != nil {
//	    log.Printf("cleanup: %v", err)
//	}
//	report := lc.PublishAll(catalog.Entries())
package discovery
