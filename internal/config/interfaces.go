package config

import "context"

// SecretProvider resolves secret references. SSMProvider serves deployed
// environments; EnvVarProvider serves local runs.
type SecretProvider interface {
	// GetParametersBatch returns a map of key -> plaintext value for every
	// key it could resolve. Unresolved keys are omitted.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
