package deployer

import "fmt"

// Step names one stage of a deployment.
type Step string

const (
	StepUpload Step = "upload"
	StepDown   Step = "down"
	StepUp     Step = "up"
	StepPrune  Step = "prune"
)

// StepError reports the step that aborted a deployment.
//
// Transfer failures carry StepUpload. Remote command failures carry the
// step whose ssh invocation failed and usually wrap a *runner.ExitError.
// When a stop or start command could not be produced at all, Generate is
// true and Err is the builder's error.
type StepError struct {
	Step     Step
	Generate bool
	Err      error
}

func (e *StepError) Error() string {
	if e.Generate {
		return fmt.Sprintf("%s step: failed to build command: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
