package remote

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/yatra/internal/model"
)

// RosterFile is the on-disk roster seed used by `yatra serve`.
type RosterFile struct {
	Participants []model.Participant `yaml:"participants"`
}

// LoadRoster reads a roster seed file. Unknown fields are rejected and every
// participant must carry an ID, a badge number and a QR token.
func LoadRoster(path string) ([]model.Participant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes roster YAML.
func ParseRoster(data []byte) ([]model.Participant, error) {
	var f RosterFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Participants))
	for i, p := range f.Participants {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("participant %d: id is required", i)
		case p.BadgeNumber <= 0:
			return nil, fmt.Errorf("participant %s: badge_number must be positive", p.ID)
		case p.QRToken == "":
			return nil, fmt.Errorf("participant %s: qr_token is required", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("participant %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if f.Participants == nil {
		f.Participants = []model.Participant{}
	}
	return model.NormalizeRoster(f.Participants), nil
}
