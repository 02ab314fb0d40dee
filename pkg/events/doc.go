// Package events is the in-process event bus. The composition root owns a
// single Bus and hands it to the producers (the detection service) and the
// consumers (the realtime hub). An optional Broker, backed by Redis pub/sub,
// relays events between API replicas.
package events
