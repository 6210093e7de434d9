// Package registration binds provisioned boards to user accounts.
//
// Register turns one serial into the device records a dashboard shows: one
// record per channel for multi-channel boards (keys "<SERIAL>_<channel>"),
// a single record keyed by the serial otherwise. Each record gets the
// catalog's default dashboard kind and the board gets an owner index entry
// under devices_by_sn so telemetry can be routed back to the user.
//
// Only one registration per (user, serial) runs at a time. A concurrent
// caller is rejected with ErrRegistrationInProgress rather than queued.
//
// Writes are issued as one UpdateMany. When that fails each device is
// retried on its own; channels that still fail are reported in a
// *PartialError. Calling Register again with the same serial creates only
// the missing channels.
package registration
