package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// QRTokenPrefix is printed before the raw token on badge QR codes.
const QRTokenPrefix = "PALITANA_YATRA_"

// Normalize returns p with text fields trimmed and NFC normalized, so that
// names typed on different keyboards compare equal.
func Normalize(p Participant) Participant {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = norm.NFC.String(strings.TrimSpace(p.Name))
	p.QRToken = NormalizeToken(p.QRToken)
	p.BloodGroup = strings.TrimSpace(p.BloodGroup)
	p.EmergencyContact = strings.TrimSpace(p.EmergencyContact)
	p.SelfContact = strings.TrimSpace(p.SelfContact)
	p.PhotoURL = strings.TrimSpace(p.PhotoURL)
	return p
}

// NormalizeRoster normalizes every participant in place and returns roster.
func NormalizeRoster(roster []Participant) []Participant {
	for i := range roster {
		roster[i] = Normalize(roster[i])
	}
	return roster
}

// NormalizeToken strips whitespace and NFC normalizes a scanned or stored
// QR token. The printed prefix is kept; use TokenCandidates for lookups.
func NormalizeToken(token string) string {
	return norm.NFC.String(strings.TrimSpace(token))
}

// TokenCandidates returns the forms under which a scanned token may be
// stored: as scanned, and with the printed prefix added or removed.
func TokenCandidates(scanned string) []string {
	t := NormalizeToken(scanned)
	if t == "" {
		return nil
	}
	if stripped, ok := strings.CutPrefix(t, QRTokenPrefix); ok {
		return []string{t, stripped}
	}
	return []string{t, QRTokenPrefix + t}
}
