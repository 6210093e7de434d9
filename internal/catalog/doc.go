// Package catalog is the static device type catalog.
//
// It answers two questions with pure lookups and no I/O:
//
//   - which dashboard kind renders a device type or hardware type
//     (Lookup, DefaultDashboardFor)
//   - what channels and sensors a hardware board exposes (Profile)
//
// DefaultDashboardFor resolves in three tiers: a direct hit in the device
// type table, then the keyword table (exact key, then the first keyword in
// priority order contained in the type), then the generic gauge.
package catalog
