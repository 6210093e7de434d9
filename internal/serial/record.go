package serial

import (
	"fmt"

	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
)

// Record is a provisioned board stored at valid_sn/<serial>.
type Record struct {
	Serial       string `json:"sn" yaml:"sn"`
	Type         string `json:"type" yaml:"type"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`

	// Relays maps channel keys to labels for multi-channel boards.
	Relays map[string]string `json:"relays,omitempty" yaml:"relays,omitempty"`

	Claimed   bool   `json:"claimed" yaml:"claimed"`
	ClaimedBy string `json:"claimedBy,omitempty" yaml:"claimed_by,omitempty"`

	// ClaimedAt and CreatedAt are milliseconds since the Unix epoch.
	ClaimedAt int64 `json:"claimedAt,omitempty" yaml:"claimed_at,omitempty"`
	CreatedAt int64 `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

// DisplayName returns Name, or "<type> <last six of serial>".
func (r Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	tail := r.Serial
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return r.Type + " " + tail
}

// HardwareType returns the catalog hardware type of the board.
func (r Record) HardwareType() catalog.HardwareType {
	return catalog.HardwareType(r.Type)
}

// Validate checks a record before it is provisioned.
func (r Record) Validate() error {
	if err := device.ValidateSerial(r.Serial); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: %s: type is required", ErrInvalidRecord, r.Serial)
	}
	for key := range r.Relays {
		if err := device.ValidateKey(key); err != nil {
			return fmt.Errorf("%w: %s: relay %w", ErrInvalidRecord, r.Serial, err)
		}
	}
	return nil
}

func (r Record) clone() Record {
	cpy := r
	if r.Relays != nil {
		cpy.Relays = make(map[string]string, len(r.Relays))
		for k, v := range r.Relays {
			cpy.Relays[k] = v
		}
	}
	return cpy
}
