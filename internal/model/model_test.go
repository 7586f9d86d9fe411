package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanID_IsUUIDv7(t *testing.T) {
	id := NewScanID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, NewScanID())
}

func TestNewDeviceID_Prefix(t *testing.T) {
	assert.Regexp(t, `^device_[0-9a-f-]{36}$`, NewDeviceID())
}

func TestNormalize_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to precomposed U+00E9
	decomposed := Participant{ID: " p1 ", Name: "Re\u0301va ", QRToken: " TOKEN1 "}
	n := Normalize(decomposed)

	assert.Equal(t, "p1", n.ID)
	assert.Equal(t, "R\u00e9va", n.Name)
	assert.Equal(t, "TOKEN1", n.QRToken)
}

func TestTokenCandidates(t *testing.T) {
	assert.Equal(t, []string{"PALITANA_YATRA_42", "42"}, TokenCandidates(" PALITANA_YATRA_42 "))
	assert.Equal(t, []string{"42", "PALITANA_YATRA_42"}, TokenCandidates("42"))
	assert.Nil(t, TokenCandidates("   "))
}

func TestRosterFingerprint_OrderIndependent(t *testing.T) {
	age := 30
	a := Participant{ID: "a", BadgeNumber: 1, Name: "Asha", QRToken: "t1", Age: &age}
	b := Participant{ID: "b", BadgeNumber: 2, Name: "Bhavin", QRToken: "t2"}

	f1, err := RosterFingerprint([]Participant{a, b})
	require.NoError(t, err)
	f2, err := RosterFingerprint([]Participant{b, a})
	require.NoError(t, err)

	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64)
}

func TestRosterFingerprint_DetectsChanges(t *testing.T) {
	a := Participant{ID: "a", BadgeNumber: 1, Name: "Asha", QRToken: "t1"}
	f1, err := RosterFingerprint([]Participant{a})
	require.NoError(t, err)

	a.EmergencyContact = "+91 98000 00000"
	f2, err := RosterFingerprint([]Participant{a})
	require.NoError(t, err)

	assert.NotEqual(t, f1, f2)
}

func TestRosterFingerprint_NormalizationInsensitive(t *testing.T) {
	f1, err := RosterFingerprint([]Participant{{ID: "a", Name: "Re\u0301va"}})
	require.NoError(t, err)
	f2, err := RosterFingerprint([]Participant{{ID: "a", Name: "R\u00e9va"}})
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestCanonicalParticipant_SortedNoHTMLEscape(t *testing.T) {
	b, err := canonicalParticipant(Participant{ID: "x", BadgeNumber: 3, Name: "A&B <c>"})
	require.NoError(t, err)
	assert.Equal(t, `{"badge_number":3,"id":"x","name":"A&B <c>"}`, string(b))
}

func TestIDSet(t *testing.T) {
	set := IDSet([]ScanRecord{{ID: "1"}, {ID: "2"}, {ID: "1"}})
	assert.Len(t, set, 2)
	_, ok := set["2"]
	assert.True(t, ok)
}
