// Package reconciler merges registration records, telemetry and in-flight
// commands into the per-device views a dashboard renders.
//
// Three inputs feed a view:
//
//   - the device record at devices/<uid>/<key> (registration truth plus
//     the last reported state, network and sensors)
//   - the runtime value at deviceData/<uid>/<key> (last confirmed value)
//   - pending commands, held in memory only
//
// Inbound telemetry is routed by board serial through the owner index at
// devices_by_sn/<serial>. Relay updates are written only when a channel
// actually changed, so repeated identical status messages cause no writes.
//
// IssueCommand applies an optimistic value to the view, publishes the
// device command and arms a timer. Telemetry reporting the proposed value
// confirms the command; otherwise the timer drops it and the view falls
// back to the last confirmed state.
package reconciler
