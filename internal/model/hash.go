package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// DomainRoster separates roster fingerprints from any other hash the
// project may compute. Version suffix enables future algorithm migration.
const DomainRoster = "yatra/roster/v1"

// RosterFingerprint returns a content hash of the roster that does not
// depend on the order participants were returned in.
func RosterFingerprint(roster []Participant) (string, error) {
	entries := make([][]byte, 0, len(roster))
	for _, p := range roster {
		b, err := canonicalParticipant(p)
		if err != nil {
			return "", fmt.Errorf("roster fingerprint: %w", err)
		}
		entries = append(entries, b)
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i], entries[j]) < 0
	})

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')

	return hashWithDomain(DomainRoster, buf.Bytes()), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalParticipant encodes p as a JSON object with sorted keys, no HTML
// escaping and absent optional fields omitted.
func canonicalParticipant(p Participant) ([]byte, error) {
	p = Normalize(p)
	fields := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	put("id", p.ID)
	put("name", p.Name)
	put("qr_token", p.QRToken)
	put("blood_group", p.BloodGroup)
	put("emergency_contact", p.EmergencyContact)
	put("self_contact", p.SelfContact)
	put("photo_url", p.PhotoURL)

	ints := map[string]int{"badge_number": p.BadgeNumber}
	if p.Age != nil {
		ints["age"] = *p.Age
	}

	keys := make([]string, 0, len(fields)+len(ints))
	for k := range fields {
		keys = append(keys, k)
	}
	for k := range ints {
		keys = append(keys, k)
	}
	// Keys are ASCII, so byte order matches UTF-16 code unit order.
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		if n, ok := ints[k]; ok {
			buf.WriteString(strconv.Itoa(n))
			continue
		}
		s, err := marshalString(fields[k])
		if err != nil {
			return nil, err
		}
		buf.Write(s)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
