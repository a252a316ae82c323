package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOccasionDate_Valid(t *testing.T) {
	d, err := ParseOccasionDate("1990-06-15")
	require.NoError(t, err)
	assert.Equal(t, OccasionDate{Year: 1990, Month: time.June, Day: 15}, d)
	assert.Equal(t, "1990-06-15", d.String())
}

func TestParseOccasionDate_LeapDay(t *testing.T) {
	d, err := ParseOccasionDate("1992-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.February, d.Month)
	assert.Equal(t, 29, d.Day)
}

func TestParseOccasionDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "1990-6-15", "1990-13-01", "1993-02-29", "15/06/1990", "1990-06-15T00:00:00Z"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseOccasionDate(in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), string(ErrCodeValidationInvalidDate))
		})
	}
}

func TestOccasionDate_JSON(t *testing.T) {
	var s Subject
	err := json.Unmarshal([]byte(`{"id":"abc","first_name":"John","last_name":"Doe","birthday":"1990-01-15","timezone":"America/New_York"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, OccasionDate{Year: 1990, Month: time.January, Day: 15}, s.Birthday)

	out, err := json.Marshal(s.Birthday)
	require.NoError(t, err)
	assert.Equal(t, `"1990-01-15"`, string(out))
}

func TestOccasionDate_JSONRejectsBadDate(t *testing.T) {
	var d OccasionDate
	err := json.Unmarshal([]byte(`"1990-02-30"`), &d)
	require.Error(t, err)
	assert.True(t, d.IsZero())
}

func TestSubject_DisplayName(t *testing.T) {
	s := &Subject{FirstName: "John", LastName: "Doe"}
	assert.Equal(t, "John Doe", s.DisplayName())
}

func TestSubjectPatch_Apply(t *testing.T) {
	s := &Subject{FirstName: "John", LastName: "Doe", TimeZone: "UTC"}
	zone := "Asia/Tokyo"
	bday := OccasionDate{Year: 1985, Month: time.March, Day: 3}

	patch := SubjectPatch{TimeZone: &zone, Birthday: &bday}
	require.False(t, patch.IsEmpty())
	patch.Apply(s)

	assert.Equal(t, "John", s.FirstName)
	assert.Equal(t, "Asia/Tokyo", s.TimeZone)
	assert.Equal(t, bday, s.Birthday)
	assert.True(t, SubjectPatch{}.IsEmpty())
}

func TestFiringMessage_JSON(t *testing.T) {
	data, err := json.Marshal(FiringMessage{SubjectID: "abc", Type: FiringTypeOccasion})
	require.NoError(t, err)
	assert.JSONEq(t, `{"subjectId":"abc","type":"OCCASION"}`, string(data))

	var empty FiringMessage
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.Empty(t, empty.SubjectID)
}
