package device

import "github.com/nerrad567/devicesync-core/internal/store"

// Store roots owned by the device domain.
const (
	RecordsRoot  = "devices"
	TypesRoot    = "device_types"
	DataRoot     = "deviceData"
	IndexRoot    = "devices_by_sn"
	CommandsRoot = "commands"
)

// RecordPath is where the Record of a user's device lives.
func RecordPath(userID, key string) string { return store.Join(RecordsRoot, userID, key) }

// TypePath is where the dashboard kind of a user's device lives.
func TypePath(userID, key string) string { return store.Join(TypesRoot, userID, key) }

// DataPath is where the RuntimeValue of a user's device lives.
func DataPath(userID, key string) string { return store.Join(DataRoot, userID, key) }

// IndexPath is where the owner index of a serial lives.
func IndexPath(serial string) string { return store.Join(IndexRoot, serial) }

// CommandPath is where the last command published to a board lives.
func CommandPath(serial string) string { return store.Join(CommandsRoot, serial) }

// OwnerIndex maps a board back to the user and device keys built from it.
// Telemetry carries only the board's serial; the index resolves it.
type OwnerIndex struct {
	UserID       string `json:"uid"`
	HardwareType string `json:"hardwareType"`

	// Keys maps device keys to channel keys ("" for single-channel boards).
	Keys map[string]string `json:"keys"`
}

// Command is the last command published to a board.
type Command struct {
	ID        string `json:"id"`
	Command   string `json:"command"`
	Value     any    `json:"value,omitempty"`
	UserID    string `json:"uid"`
	Timestamp int64  `json:"timestamp"`
}
