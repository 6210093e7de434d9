// Package serial implements the serial number registry: the catalog of
// provisioned boards a user may claim.
//
// Records live at valid_sn/<serial> in the realtime store. Lookup tries an
// exact key first and then falls back to a case-insensitive scan, because
// boards and QR labels report serials in inconsistent case.
//
// # Claim policy
//
// A serial is claimed by at most one user. MarkClaimed by the owning user
// again is a no-op so an interrupted registration can be retried; a claim
// by anyone else fails with ErrAlreadyClaimed. Release returns the serial
// to the pool once its owner removes the last device built from it.
package serial
