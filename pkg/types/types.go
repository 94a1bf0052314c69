// Package types provides shared types used across ssh-deploy packages.
package types

import "time"

// Status values reported on a DeploymentResult.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DeploymentResult describes the outcome of one deployment run.
// It is returned for both successful and failed runs so callers can
// detect failure without inspecting console output.
type DeploymentResult struct {
	// Unique identifier of this run
	ID string `json:"id"`

	// Name of the deployed application
	ApplicationName string `json:"application_name"`

	// Remote host the application was deployed to
	Host string `json:"host"`

	// Name of the deployment directory (e.g. "api_1718000000000")
	DeployDir string `json:"deploy_dir"`

	// Absolute remote path of the deployment directory
	DeployPath string `json:"deploy_path"`

	// StatusSucceeded or StatusFailed
	Status string `json:"status"`

	// Step that failed (upload, down, up, prune); empty on success
	FailedStep string `json:"failed_step,omitempty"`

	// Error that aborted the run; nil on success
	Err error `json:"-"`

	// Error message, kept for serialized records
	Message string `json:"message,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the run completed every step.
func (r *DeploymentResult) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Duration returns how long the run took.
func (r *DeploymentResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Deployment is a deployment directory that exists on the remote host.
type Deployment struct {
	// Directory name under the remote root
	Dir string

	// Absolute remote path
	Path string

	// Time encoded in the directory name
	Timestamp time.Time

	// True for the newest deployment of the application
	Current bool
}
