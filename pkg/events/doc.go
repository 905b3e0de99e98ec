/*
Package events distributes deployment lifecycle events.

The in-process Broker fans events out to subscriber channels with
per-subscriber buffering; a slow subscriber loses events rather than
blocking the deployment that produced them.

NATSPublisher optionally mirrors every event to a NATS subject
(<prefix>.<instance>.<type>) so deployments can be observed from outside
the controller process. Mirroring is best-effort and never feeds back
into control flow.
*/
package events
