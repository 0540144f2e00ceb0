// Package notifications publishes workflow events to an ntfy topic.
//
// Events are gated per-category by configuration and deduplicated inside a
// configurable window so repeated failures do not flood the topic. With no
// topic configured the service is a noop.
package notifications
