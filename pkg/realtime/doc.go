// Package realtime pushes detection and catalogue events to dashboards over
// websockets.
//
// Connections authenticate with the same bearer tokens as the REST API and
// may join a channel room, either with the channel_id query parameter or by
// sending {"type":"subscribe","channel_id":"..."}.
package realtime
