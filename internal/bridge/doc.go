// Package bridge wires discovery, inference and refresh into one running
// service on a single MQTT connection.
//
// # Startup ordering
//
//  1. Publish a "starting" health status
//  2. Retract this device's stale retained documents (when enabled)
//  3. Publish the catalog
//  4. Subscribe to telemetry topics for inference (when enabled)
//  5. Subscribe to the command and refresh topics (when refresh is enabled)
//  6. Start periodic health reporting
//
// Cleanup runs to completion before step 3, so a retraction never lands
// after the document that replaces it.
//
// # Topics
//
//	<base>/set                 user commands, each triggers a refresh
//	<base>/bridge/refresh      refresh button
//	<base>/bridge/availability online/offline (Last Will)
//	<base>/bridge/health       retained JSON health
//	<base>/<group>             refreshed state snapshots
package bridge
