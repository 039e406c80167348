package analytics

import (
	"errors"
	"fmt"
)

// Error kinds raised by the analytical core.
// Each is raised at the boundary of the failing component and propagated
// unchanged (wrapped with %w) to the caller.
var (
	// ErrIntegrity is returned at load when a foreign key references a missing
	// parent or an attribute violates a data model constraint.
	ErrIntegrity = errors.New("analytics: integrity violation")

	// ErrResolution is returned by the join resolver on malformed input,
	// such as non-unique primary keys.
	ErrResolution = errors.New("analytics: join resolution failed")

	// ErrInvalidPartition is returned by an operator when a partition,
	// order or measure key is missing on an input row.
	ErrInvalidPartition = errors.New("analytics: invalid partition")

	// ErrInvalidWindow is returned when a window or bucket count is not usable.
	ErrInvalidWindow = errors.New("analytics: invalid window")

	// ErrUnknownAnalysis is returned when an analysis name is not registered.
	ErrUnknownAnalysis = errors.New("analytics: unknown analysis")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("analytics: invalid config")
)

// Stage names the component that failed.
type Stage string

const (
	StageLoad     Stage = "load"
	StageResolve  Stage = "resolve"
	StageOperator Stage = "operator"
	StageAssemble Stage = "assemble"
)

// StageError tags an error with the stage and analysis that produced it.
type StageError struct {
	Stage    Stage
	Analysis string
	Err      error
}

func (e *StageError) Error() string {
	if e.Analysis == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Analysis, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// WrapError tags err with the failing stage and analysis name.
// Returns nil for a nil error. An error already tagged keeps its original stage.
func WrapError(err error, stage Stage, analysis string) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		if se.Analysis == "" && analysis != "" {
			return &StageError{Stage: se.Stage, Analysis: analysis, Err: se.Err}
		}
		return err
	}
	return &StageError{Stage: stage, Analysis: analysis, Err: err}
}

// StageOf reports the stage recorded on err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// IsIntegrity checks if the error is a referential or constraint violation.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsResolution checks if the error came from malformed join input.
func IsResolution(err error) bool {
	return errors.Is(err, ErrResolution)
}

// IsInvalidPartition checks if the error came from a missing operator key.
func IsInvalidPartition(err error) bool {
	return errors.Is(err, ErrInvalidPartition)
}

// ClassifyError returns a short label for err, used in metrics.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrResolution):
		return "resolution"
	case errors.Is(err, ErrInvalidPartition):
		return "invalid_partition"
	case errors.Is(err, ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ErrUnknownAnalysis):
		return "unknown_analysis"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	default:
		return "other"
	}
}
