// Package checkpoint defines the fixed set of physical scan stations on the
// pilgrimage route and the role each one plays in a cycle.
//
// Scan pattern for one Jatra:
//   - Motisha Tuk (top of hill) is scanned before the descent starts
//   - Gheti (back route bottom) closes the Jatra
//   - Sagaal Pol (front route bottom) marks the final descent of the day
package checkpoint

import "fmt"

// ID identifies a checkpoint. Valid IDs are 1..3.
type ID int

const (
	// Start is the descent start checkpoint (Motisha Tuk).
	Start ID = 1
	// Terminal closes a cycle (Gheti).
	Terminal ID = 2
	// FinalOfDay marks the last descent of a day (Sagaal Pol).
	FinalOfDay ID = 3
)

// SaatJatraTotal is the number of completed cycles that make up the full
// pilgrimage.
const SaatJatraTotal = 7

// Role describes what a checkpoint means for cycle accounting.
type Role string

const (
	RoleStart      Role = "start"
	RoleTerminal   Role = "terminal"
	RoleFinalOfDay Role = "final_of_day"
)

// Checkpoint is a physical scan station.
type Checkpoint struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	Role        Role   `json:"role"`
}

var checkpoints = []Checkpoint{
	{ID: Start, Name: "Motisha Tuk", ShortName: "Motisha", Description: "Top of hill - scan before descent", Role: RoleStart},
	{ID: Terminal, Name: "Gheti", ShortName: "Gheti", Description: "Back route bottom - Jatra completion", Role: RoleTerminal},
	{ID: FinalOfDay, Name: "Sagaal Pol", ShortName: "Sagaal", Description: "Front route - final descent of day", Role: RoleFinalOfDay},
}

// All returns the checkpoints in route order.
func All() []Checkpoint {
	out := make([]Checkpoint, len(checkpoints))
	copy(out, checkpoints)
	return out
}

// Lookup returns the checkpoint with the given ID.
func Lookup(id ID) (Checkpoint, bool) {
	for _, cp := range checkpoints {
		if cp.ID == id {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// Valid reports whether id names a known checkpoint.
func Valid(id ID) bool {
	_, ok := Lookup(id)
	return ok
}

// Name returns the display name, or a placeholder for unknown IDs.
func (id ID) Name() string {
	if cp, ok := Lookup(id); ok {
		return cp.Name
	}
	return fmt.Sprintf("checkpoint %d", int(id))
}
