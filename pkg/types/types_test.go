package types

import (
	"testing"
	"time"
)

func TestDeploymentResultSucceeded(t *testing.T) {
	tests := []struct {
		name   string
		result *DeploymentResult
		want   bool
	}{
		{
			name:   "succeeded",
			result: &DeploymentResult{Status: StatusSucceeded},
			want:   true,
		},
		{
			name:   "failed",
			result: &DeploymentResult{Status: StatusFailed, FailedStep: "up"},
			want:   false,
		},
		{
			name:   "empty status",
			result: &DeploymentResult{},
			want:   false,
		},
		{
			name:   "nil result",
			result: nil,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Succeeded(); got != tt.want {
				t.Errorf("Succeeded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeploymentResultDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	r := &DeploymentResult{StartedAt: start}
	if r.Duration() != 0 {
		t.Errorf("Expected zero duration for unfinished run, got %v", r.Duration())
	}

	r.FinishedAt = start.Add(90 * time.Second)
	if r.Duration() != 90*time.Second {
		t.Errorf("Expected 90s, got %v", r.Duration())
	}
}
