package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolTimeout indicates a tool execution timed out.
	ErrToolTimeout = errors.New("tool execution timed out")
)

// ToolErrorType categorizes tool execution errors for retry decisions and
// diagnostics.
type ToolErrorType string

const (
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorExecution    ToolErrorType = "execution"
)

// IsRetryable reports whether this error type suggests retrying may
// succeed.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorNetwork, ToolErrorTimeout, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError wraps a tool execution failure with its classification.
type ToolError struct {
	ToolName  string
	Type      ToolErrorType
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed (%s): %v", e.ToolName, e.Type, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError wraps cause with a classification inferred from its text.
func NewToolError(toolName string, cause error) *ToolError {
	t := classifyToolError(cause)
	return &ToolError{
		ToolName:  toolName,
		Type:      t,
		Retryable: t.IsRetryable(),
		Cause:     cause,
	}
}

// classifyToolError infers an error type from the error chain and message.
// Classification is heuristic; anything unrecognized is an execution error.
func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorExecution
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timed out"):
		return ToolErrorTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network"), strings.Contains(msg, "dial tcp"):
		return ToolErrorNetwork
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return ToolErrorRateLimit
	case strings.Contains(msg, "permission"), strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "access denied"):
		return ToolErrorPermission
	case strings.Contains(msg, "invalid argument"), strings.Contains(msg, "invalid input"),
		strings.Contains(msg, "missing field"), strings.Contains(msg, "bad request"):
		return ToolErrorInvalidInput
	default:
		return ToolErrorExecution
	}
}

// IsToolRetryable reports whether err (tool-error-wrapped or not) looks
// worth retrying.
func IsToolRetryable(err error) bool {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Retryable
	}
	return classifyToolError(err).IsRetryable()
}

// LoopError is an error from one phase of the agent loop, annotated with
// the iteration it happened in.
type LoopError struct {
	// Phase is the loop phase where the error occurred.
	Phase LoopPhase

	// Iteration is the loop iteration where the error occurred.
	Iteration int

	// Message is an optional human-readable override.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loop error at %s (iteration %d): %s", e.Phase, e.Iteration, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("loop error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
	}
	return fmt.Sprintf("loop error at %s (iteration %d)", e.Phase, e.Iteration)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// LoopPhase names a phase of the single-tool stepper.
type LoopPhase string

const (
	PhaseInit    LoopPhase = "init"
	PhaseStream  LoopPhase = "stream"
	PhaseExecute LoopPhase = "execute"
)
