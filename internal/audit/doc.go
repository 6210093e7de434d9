// Package audit records account activity: boards registered, devices
// renamed, dashboards reassigned and devices removed.
//
// Entries live in the audit_log SQLite table and are always scoped to the
// user that caused them. The registration service writes them; the API
// serves them under GET /api/v1/audit.
package audit
