package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"golang.org/x/term"
)

// Step is one parameter the operator is asked for.
type Step struct {
	Label    string
	Key      string
	Type     ssmtypes.ParameterType
	Prompt   string
	Validate func(ctx context.Context, input string) ValidationResult
	Secret   bool
	Optional bool
}

const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

// Inventory lists the parameters in the order they are asked for. Keys
// match the *_SSM_PARAM pointers set on the deployed functions.
func Inventory(v *Validator) []Step {
	return []Step{
		{
			Label:    "Delivery URL",
			Key:      "delivery_url",
			Type:     ssmtypes.ParameterTypeSecureString,
			Prompt:   "Paste the webhook URL greetings are POSTed to (https://...):",
			Validate: v.ValidateDeliveryURL,
			Secret:   true,
		},
		{
			Label:  "Scheduler target ARN",
			Key:    "scheduler_target_arn",
			Type:   ssmtypes.ParameterTypeString,
			Prompt: "Paste the ARN of the firing queue the Timer Service targets (arn:aws:sqs:...):",
			Validate: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, `^arn:aws[a-z-]*:sqs:[a-z0-9-]+:\d{12}:[A-Za-z0-9_.-]+$`, "SQS queue ARN")
			},
		},
		{
			Label:  "Scheduler role ARN",
			Key:    "scheduler_role_arn",
			Type:   ssmtypes.ParameterTypeString,
			Prompt: "Paste the ARN of the IAM role the Timer Service assumes to send to the queue:",
			Validate: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, `^arn:aws[a-z-]*:iam::\d{12}:role/[A-Za-z0-9+=,.@_/-]+$`, "IAM role ARN")
			},
		},
		{
			Label:  "Firing queue URL (optional)",
			Key:    "firing_queue_url",
			Type:   ssmtypes.ParameterTypeString,
			Prompt: "Paste the firing queue URL used by the fire tool (or press Enter to skip):",
			Validate: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, `^https://sqs\.[a-z0-9-]+\.amazonaws\.com/\d{12}/[A-Za-z0-9_.-]+$`, "SQS queue URL")
			},
			Optional: true,
		},
		{
			Label:    "Database URL (optional, postgres store only)",
			Key:      "database_url",
			Type:     ssmtypes.ParameterTypeSecureString,
			Prompt:   "Paste the postgres:// connection string (or press Enter to skip):",
			Validate: v.ValidateDatabaseURL,
			Secret:   true,
			Optional: true,
		},
	}
}

// Runner walks the inventory, prompting for anything missing.
type Runner struct {
	SSM          *SSMManager
	Validator    *Validator
	Stdin        io.Reader
	Stderr       io.Writer
	SkipOptional bool

	scanner   *bufio.Scanner
	inventory []Step
}

// NewRunner creates a Runner bound to the terminal.
func NewRunner(s *Session) *Runner {
	return &Runner{
		SSM:       NewSSMManager(s),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

type stepResult struct {
	Label  string
	Action string // written, overwritten or skipped
	Path   string
}

// Run processes every step and prints a summary.
func (r *Runner) Run(ctx context.Context) error {
	inventory := r.inventory
	if inventory == nil {
		inventory = Inventory(r.Validator)
	}

	results := make([]stepResult, 0, len(inventory))
	for i, step := range inventory {
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.Label)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.Label, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

func (r *Runner) processStep(ctx context.Context, step Step) (stepResult, error) {
	path := r.SSM.Path(step.Key)
	result := stepResult{Label: step.Label, Path: path}

	if step.Optional && r.SkipOptional {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-optional)\n")
		result.Action = "skipped"
		return result, nil
	}

	exists, err := r.SSM.Exists(ctx, path)
	if err != nil {
		return result, err
	}
	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)
		overwrite, err := r.promptYesNo("  [S]kip or [O]verwrite? ", "o", "s")
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if !overwrite {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if err := r.SSM.Put(ctx, path, value, step.Type, exists); err != nil {
		return result, err
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads input until it validates. Empty input skips an
// optional step; for a required one the operator picks skip or retry.
func (r *Runner) promptAndValidate(ctx context.Context, step Step) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; {
		var (
			input string
			err   error
		)
		if step.Secret {
			input, err = r.readSecret("  > ")
		} else {
			input, err = r.readLine("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.Label, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			retry, err := r.promptYesNo("  No input received. [S]kip this parameter or [R]etry? ", "r", "s")
			if err != nil {
				return "", err
			}
			if !retry {
				return "", errSkipped
			}
			continue
		}

		if step.Secret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.Validate != nil {
			vr := step.Validate(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				attempt++
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.Label)
}

func (r *Runner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *Runner) readLine(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecret disables echo when stdin is a terminal and falls back to a
// plain line read otherwise.
func (r *Runner) readSecret(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(secret), nil
	}
	return r.scanLine()
}

// promptYesNo loops until the answer starts with yes or no (case-insensitive)
// and reports whether it was yes.
func (r *Runner) promptYesNo(prompt, yes, no string) (bool, error) {
	for {
		line, err := r.readLine(prompt)
		if err != nil {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(answer, yes):
			return true, nil
		case strings.HasPrefix(answer, no):
			return false, nil
		}
		fmt.Fprintf(r.Stderr, "  Please enter '%s' or '%s'.\n", strings.ToUpper(yes), strings.ToUpper(no))
	}
}

func (r *Runner) printSummary(results []stepResult) {
	counts := map[string]int{}
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}
	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "\n")
}
