package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysValid(context.Context, string) ValidationResult {
	return ValidationResult{Valid: true, Message: "ok"}
}

func newTestRunner(mock *mockSSMClient, stdin string, steps []Step) (*Runner, *bytes.Buffer) {
	stderr := &bytes.Buffer{}
	return &Runner{
		SSM:       newTestSSMManager(mock),
		Validator: NewValidatorWithDeps(nil, nil),
		Stdin:     strings.NewReader(stdin),
		Stderr:    stderr,
		inventory: steps,
	}, stderr
}

func TestInventory_KeysMatchConfigPointers(t *testing.T) {
	steps := Inventory(NewValidatorWithDeps(nil, nil))

	keys := make([]string, 0, len(steps))
	for _, s := range steps {
		keys = append(keys, s.Key)
		if s.Secret {
			assert.Equal(t, ssmtypes.ParameterTypeSecureString, s.Type, s.Key)
		}
	}
	assert.Equal(t, []string{
		"delivery_url",
		"scheduler_target_arn",
		"scheduler_role_arn",
		"firing_queue_url",
		"database_url",
	}, keys)
}

func TestRun_WritesNewParameters(t *testing.T) {
	mock := &mockSSMClient{}
	steps := []Step{
		{Label: "A", Key: "a", Type: ssmtypes.ParameterTypeSecureString, Validate: alwaysValid, Secret: true},
		{Label: "B", Key: "b", Type: ssmtypes.ParameterTypeString, Validate: alwaysValid},
	}
	r, stderr := newTestRunner(mock, "secret-a\nvalue-b\n", steps)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "/dev/occasions/a", aws.ToString(mock.putCalls[0].Name))
	assert.Equal(t, "secret-a", aws.ToString(mock.putCalls[0].Value))
	assert.NotContains(t, stderr.String(), "secret-a")
	assert.Contains(t, stderr.String(), "Written: 2")
}

func TestRun_ExistingParameterSkipped(t *testing.T) {
	mock := &mockSSMClient{existing: map[string]bool{"/dev/occasions/a": true}}
	steps := []Step{{Label: "A", Key: "a", Type: ssmtypes.ParameterTypeString}}
	r, _ := newTestRunner(mock, "s\n", steps)

	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, mock.putCalls)
}

func TestRun_ExistingParameterOverwritten(t *testing.T) {
	mock := &mockSSMClient{existing: map[string]bool{"/dev/occasions/a": true}}
	steps := []Step{{Label: "A", Key: "a", Type: ssmtypes.ParameterTypeString}}
	r, stderr := newTestRunner(mock, "x\no\nnew-value\n", steps)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, mock.putCalls, 1)
	assert.True(t, aws.ToBool(mock.putCalls[0].Overwrite))
	assert.Contains(t, stderr.String(), "Please enter 'O' or 'S'")
	assert.Contains(t, stderr.String(), "Overwritten: 1")
}

func TestRun_OptionalSkippedOnEmptyInput(t *testing.T) {
	mock := &mockSSMClient{}
	steps := []Step{{Label: "Opt", Key: "opt", Type: ssmtypes.ParameterTypeString, Optional: true}}
	r, _ := newTestRunner(mock, "\n", steps)

	require.NoError(t, r.Run(context.Background()))
	assert.Empty(t, mock.putCalls)
}

func TestRun_SkipOptionalFlag(t *testing.T) {
	mock := &mockSSMClient{}
	steps := []Step{{Label: "Opt", Key: "opt", Type: ssmtypes.ParameterTypeString, Optional: true}}
	r, stderr := newTestRunner(mock, "", steps)
	r.SkipOptional = true

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, stderr.String(), "--skip-optional")
}

func TestRun_RequiredEmptyThenRetry(t *testing.T) {
	mock := &mockSSMClient{}
	steps := []Step{{Label: "A", Key: "a", Type: ssmtypes.ParameterTypeString}}
	r, _ := newTestRunner(mock, "\nr\nvalue\n", steps)

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, mock.putCalls, 1)
	assert.Equal(t, "value", aws.ToString(mock.putCalls[0].Value))
}

func TestRun_MaxRetriesExceeded(t *testing.T) {
	mock := &mockSSMClient{}
	never := func(context.Context, string) ValidationResult { return ValidationResult{Message: "nope"} }
	steps := []Step{{Label: "A", Key: "a", Type: ssmtypes.ParameterTypeString, Validate: never}}
	r, _ := newTestRunner(mock, strings.Repeat("bad\n", maxRetries), steps)

	err := r.Run(context.Background())
	assert.ErrorContains(t, err, "maximum retries")
	assert.Empty(t, mock.putCalls)
}
