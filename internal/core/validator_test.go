package core

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occasions/internal/types"
)

// testLogger returns a discard logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testTimezoneStruct struct {
	Timezone string `json:"timezone" validate:"required,is_timezone"`
}

type testDateStruct struct {
	Birthday string `json:"birthday" validate:"required,occasion_date"`
}

type testNameStruct struct {
	FirstName string  `json:"first_name" validate:"required,min=1,max=5"`
	Nickname  *string `json:"nickname" validate:"omitnil,min=1,max=5"`
}

func TestValidationResult_IsValid(t *testing.T) {
	assert.True(t, ValidationResult{}.IsValid())
	assert.False(t, ValidationResult{Errors: []ValidationError{{Field: "x"}}}.IsValid())
}

func TestNewValidator(t *testing.T) {
	v := NewValidator(nil)
	require.NotNil(t, v)
	assert.NotNil(t, v.validate)
	assert.NotNil(t, v.logger)
}

func TestValidateStruct_Timezone(t *testing.T) {
	v := NewValidator(testLogger())

	tests := []struct {
		zone    string
		wantErr bool
	}{
		{"America/New_York", false},
		{"Asia/Kathmandu", false},
		{"UTC", false},
		{"Mars/Olympus_Mons", true},
		{"Local", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.zone, func(t *testing.T) {
			err := v.ValidateStruct(testTimezoneStruct{Timezone: tt.zone})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			if tt.zone == "" {
				assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
			} else {
				assert.Equal(t, types.ErrCodeValidationInvalidTimezone, appErr.Code)
			}
		})
	}
}

func TestValidateStruct_OccasionDate(t *testing.T) {
	v := NewValidator(testLogger())

	assert.NoError(t, v.ValidateStruct(testDateStruct{Birthday: "1990-06-15"}))
	assert.NoError(t, v.ValidateStruct(testDateStruct{Birthday: "2000-02-29"}))

	for _, bad := range []string{"2023-02-29", "1990-13-01", "15/06/1990", "1990-6-15"} {
		err := v.ValidateStruct(testDateStruct{Birthday: bad})
		require.Error(t, err, bad)
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeValidationInvalidDate, appErr.Code, bad)
	}
}

func TestValidateStruct_DetailsListEveryField(t *testing.T) {
	v := NewValidator(testLogger())
	long := "abcdefgh"

	err := v.ValidateStruct(testNameStruct{FirstName: "", Nickname: &long})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())

	errs, ok := appErr.Details["validation_errors"].([]ValidationError)
	require.True(t, ok, "validation_errors should be []ValidationError")
	require.Len(t, errs, 2)
	assert.Equal(t, "first_name", errs[0].Field)
	assert.Equal(t, "nickname", errs[1].Field)
	assert.Equal(t, string(types.ErrCodeValidationFieldLength), errs[1].Code)
}

func TestValidateStruct_NilPointerSkipped(t *testing.T) {
	v := NewValidator(testLogger())
	assert.NoError(t, v.ValidateStruct(testNameStruct{FirstName: "Ann"}))
}

func TestCheck_NonStruct(t *testing.T) {
	v := NewValidator(testLogger())
	result := v.Check("not a struct")
	assert.False(t, result.IsValid())
	assert.Equal(t, string(types.ErrCodeValidationInvalidField), result.Errors[0].Code)
}

func TestTagToErrorCode(t *testing.T) {
	assert.Equal(t, types.ErrCodeValidationMissingField, tagToErrorCode("required"))
	assert.Equal(t, types.ErrCodeValidationFieldLength, tagToErrorCode("max"))
	assert.Equal(t, types.ErrCodeValidationInvalidTimezone, tagToErrorCode("is_timezone"))
	assert.Equal(t, types.ErrCodeValidationInvalidDate, tagToErrorCode("occasion_date"))
	assert.Equal(t, types.ErrCodeValidationInvalidField, tagToErrorCode("uuid"))
}
