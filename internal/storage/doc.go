// Package storage persists per-user configuration documents (broadcast
// config, chat lists, join settings) as opaque JSON blobs keyed by user id.
// The core enforces no schema beyond what it writes itself.
package storage
