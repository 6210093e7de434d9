// Package store is the realtime state store: a hierarchical key-value tree
// addressed by slash-separated paths, with change subscriptions.
//
// Values are JSON-shaped (objects, strings, numbers, booleans, arrays).
// Objects are stored as their leaves, so writing a path replaces the whole
// subtree beneath it and empty objects disappear, mirroring the document
// database the dashboard was built against.
//
// Subscriptions deliver the full current value of the watched path on every
// change, never a delta. Deliveries for one subscription are serialised and
// may be coalesced: a listener always sees the latest state, not every
// intermediate one.
//
// Two backends share these semantics: SQLite (the production store) and an
// in-process map used by tests and the "memory" driver.
package store
