package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is a pass/fail plus a message for the operator.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector dials with pgx.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator probes operator input before it is written.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
}

// NewValidator uses a real HTTP client and pgx.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dbConn:     PgxConnector{},
	}
}

// NewValidatorWithDeps injects the probes.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{httpClient: httpClient, dbConn: dbConn}
}

const validateTimeout = 15 * time.Second

// ValidateDeliveryURL requires an absolute https URL and checks the host
// answers a HEAD request. Any HTTP status counts as reachable; webhook
// endpoints commonly reject HEAD with 4xx. No greeting is sent.
func (v *Validator) ValidateDeliveryURL(ctx context.Context, raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ValidationResult{Message: "delivery URL must be an absolute URL"}
	}
	if u.Scheme != "https" {
		return ValidationResult{Message: fmt.Sprintf("delivery URL must use https, got %q", u.Scheme)}
	}
	if v.httpClient == nil {
		return ValidationResult{Valid: true, Message: "delivery URL format validated"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, raw, nil)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("building probe request: %v", err)}
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("delivery host unreachable: %v", err)}
	}
	resp.Body.Close()

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("delivery host %s reachable (HEAD returned %d)", u.Host, resp.StatusCode),
	}
}

// ValidateDatabaseURL requires a postgres:// DSN and a successful connect.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return ValidationResult{Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", u.Scheme)}
	}
	if v.dbConn == nil {
		return ValidationResult{Valid: true, Message: "database URL format validated"}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, raw); err != nil {
		return ValidationResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("database connection verified (host=%s)", u.Hostname())}
}

// ValidateRegex checks format only, for values that cannot be probed
// without side effects.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)}
	}
	if !re.MatchString(input) {
		return ValidationResult{Message: fmt.Sprintf("%s does not match expected format", fieldName)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%s format validated", fieldName)}
}
