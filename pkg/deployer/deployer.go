// Package deployer ships a local application directory to a remote host
// over SSH.
//
// A deployment runs five steps in strict order: pick a new timestamped
// directory name, rsync the application into it, run the stop command for
// the old version, run the start command for the new one, and remove every
// other deployment directory of the application. The first failing step
// aborts the run. Nothing is retried and completed steps are not undone,
// so a failed start after a successful stop leaves the application down.
//
// Two deployments of the same application to the same host must not run
// at the same time; pruning in one can remove the other's directory.
package deployer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jvreagan/ssh-deploy/pkg/logging"
	"github.com/jvreagan/ssh-deploy/pkg/remote"
	"github.com/jvreagan/ssh-deploy/pkg/runner"
	"github.com/jvreagan/ssh-deploy/pkg/types"
)

// Recorder stores the outcome of a deployment.
type Recorder interface {
	Record(ctx context.Context, result *types.DeploymentResult) error
}

// Deployer runs deployments through a runner.Runner.
type Deployer struct {
	runner   runner.Runner
	now      func() time.Time
	out      io.Writer
	errOut   io.Writer
	recorder Recorder
	sudo     bool

	mu         sync.Mutex
	lastMillis int64
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithClock replaces time.Now as the source of deployment timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Deployer) { d.now = now }
}

// WithOutput sends console banners to out and failure blocks to errOut.
func WithOutput(out, errOut io.Writer) Option {
	return func(d *Deployer) {
		d.out = out
		d.errOut = errOut
	}
}

// WithRecorder stores every deployment outcome produced by Run.
func WithRecorder(r Recorder) Option {
	return func(d *Deployer) { d.recorder = r }
}

// WithSudo controls whether stale directories are removed with sudo.
// The default is true.
func WithSudo(sudo bool) Option {
	return func(d *Deployer) { d.sudo = sudo }
}

// New returns a Deployer that runs external commands through r.
func New(r runner.Runner, opts ...Option) *Deployer {
	d := &Deployer{
		runner: r,
		now:    time.Now,
		out:    os.Stdout,
		errOut: os.Stderr,
		sudo:   true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NextDeployDir returns a new deployment directory name for app. Names are
// built from the current Unix time in milliseconds; if the clock has not
// moved past the previous name issued by this Deployer, the previous
// timestamp plus one is used so names never repeat.
func (d *Deployer) NextDeployDir(app string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	millis := d.now().UnixMilli()
	if millis <= d.lastMillis {
		millis = d.lastMillis + 1
	}
	d.lastMillis = millis
	return remote.DeployDir(app, millis)
}

// Deploy runs the five deployment steps against cfg's host. It returns the
// result together with the first error encountered; steps after a failure
// never run. Step failures are reported as *StepError.
func (d *Deployer) Deploy(ctx context.Context, cfg Config) (*types.DeploymentResult, error) {
	result := &types.DeploymentResult{
		ID:              uuid.NewString(),
		ApplicationName: cfg.AppName,
		Host:            cfg.Host,
		StartedAt:       d.now(),
	}

	if err := cfg.Validate(); err != nil {
		return d.fail(result, "", fmt.Errorf("invalid deploy config: %w", err))
	}

	// rsync runs inside the application directory, so a relative path
	// would be resolved twice
	appDir, err := filepath.Abs(cfg.AppDir)
	if err != nil {
		return d.fail(result, "", fmt.Errorf("failed to resolve application directory: %w", err))
	}

	console := logging.NewConsoleTo(cfg.AppName, d.out, d.errOut)
	tgt := remote.Target{User: cfg.User, Host: cfg.Host, IdentityFile: cfg.IdentityFile}

	deployDir := d.NextDeployDir(cfg.AppName)
	deployPath := remote.DeployPath(cfg.Root, deployDir)
	result.DeployDir = deployDir
	result.DeployPath = deployPath

	target := Target{
		AppName:    cfg.AppName,
		Root:       cfg.Root,
		DeployDir:  deployDir,
		DeployPath: deployPath,
	}
	fields := map[string]interface{}{
		"id":          result.ID,
		"app":         cfg.AppName,
		"host":        cfg.Host,
		"deploy_path": deployPath,
	}
	logging.InfoContext("deployment started", fields)

	console.Banner(fmt.Sprintf("Uploading to %s...", deployPath))
	if err := d.runner.Run(ctx, remote.RsyncCommand(tgt, appDir, deployPath)); err != nil {
		return d.fail(result, StepUpload, &StepError{Step: StepUpload, Err: err})
	}

	console.Banner(fmt.Sprintf("Removing previous version of %s...", cfg.AppName))
	if err := d.runBuilt(ctx, tgt, StepDown, cfg.Down, target); err != nil {
		return d.fail(result, StepDown, err)
	}

	console.Banner(fmt.Sprintf("Starting new version of %s...", cfg.AppName))
	if err := d.runBuilt(ctx, tgt, StepUp, cfg.Up, target); err != nil {
		return d.fail(result, StepUp, err)
	}

	console.Banner(fmt.Sprintf("Pruning old deploy directories of %s...", cfg.AppName))
	prune := remote.PruneCommand(cfg.Root, cfg.AppName, deployPath, d.sudo)
	if err := d.runner.Run(ctx, remote.SSHCommand(tgt, prune)); err != nil {
		return d.fail(result, StepPrune, &StepError{Step: StepPrune, Err: err})
	}

	console.Banner(fmt.Sprintf("Successfully deployed %s to %s!", cfg.AppName, deployPath))

	result.Status = types.StatusSucceeded
	result.FinishedAt = d.now()
	logging.InfoContext("deployment finished", fields, "duration", result.Duration().String())
	return result, nil
}

// runBuilt asks b for a command and runs it on the remote host.
func (d *Deployer) runBuilt(ctx context.Context, tgt remote.Target, step Step, b CommandBuilder, target Target) error {
	cmd, err := b.Command(ctx, target)
	if err != nil {
		return &StepError{Step: step, Generate: true, Err: err}
	}
	logging.Debug("remote command built", "step", string(step), "command", logging.SanitizeString(cmd))
	if err := d.runner.Run(ctx, remote.SSHCommand(tgt, cmd)); err != nil {
		return &StepError{Step: step, Err: err}
	}
	return nil
}

func (d *Deployer) fail(result *types.DeploymentResult, step Step, err error) (*types.DeploymentResult, error) {
	result.Status = types.StatusFailed
	result.FailedStep = string(step)
	result.Err = err
	result.Message = err.Error()
	result.FinishedAt = d.now()
	return result, err
}

// Run deploys cfg and never returns an error. A failure is printed as an
// error block on the error stream and reported through the returned
// result, whose Status is types.StatusFailed. When a recorder is
// configured the outcome is stored; a recording failure is only warned
// about and does not change the result.
func (d *Deployer) Run(ctx context.Context, cfg Config) *types.DeploymentResult {
	result, err := d.Deploy(ctx, cfg)
	if err != nil {
		logging.NewConsoleTo(cfg.AppName, d.out, d.errOut).Failure(err)
		logging.ErrorContext("deployment failed", map[string]interface{}{
			"id":   result.ID,
			"app":  cfg.AppName,
			"step": result.FailedStep,
		}, "error", logging.SanitizeString(err.Error()))
	}

	if d.recorder != nil && result.DeployDir != "" {
		// an interrupted run is still recorded
		if rerr := d.recorder.Record(context.WithoutCancel(ctx), result); rerr != nil {
			logging.NewConsoleTo(cfg.AppName, d.out, d.errOut).Warn(fmt.Sprintf("failed to record deployment: %v", rerr))
			logging.Warn("failed to record deployment", "id", result.ID, "error", rerr.Error())
		}
	}
	return result
}

// Status lists the deployment directories of cfg's application on the
// remote host, newest first. The newest one is marked Current.
func (d *Deployer) Status(ctx context.Context, cfg Config) ([]types.Deployment, error) {
	if cfg.AppName == "" || cfg.Host == "" || cfg.User == "" || cfg.Root == "" || cfg.IdentityFile == "" {
		return nil, fmt.Errorf("application name, user, host, root and identity file are required")
	}

	var out bytes.Buffer
	cmd := remote.SSHCommand(
		remote.Target{User: cfg.User, Host: cfg.Host, IdentityFile: cfg.IdentityFile},
		remote.ListCommand(cfg.Root, cfg.AppName),
	)
	cmd.Stdout = &out
	if err := d.runner.Run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	return ParseDeployments(cfg.AppName, out.String()), nil
}

// ParseDeployments reads find output, one remote path per line, and keeps
// the entries named {app}_{millis}. Other entries are ignored.
func ParseDeployments(app, output string) []types.Deployment {
	prefix := app + "_"
	var deployments []types.Deployment
	for _, line := range strings.Split(output, "\n") {
		p := strings.TrimSpace(line)
		if p == "" {
			continue
		}
		dir := path.Base(p)
		if !strings.HasPrefix(dir, prefix) {
			continue
		}
		millis, err := strconv.ParseInt(strings.TrimPrefix(dir, prefix), 10, 64)
		if err != nil {
			continue
		}
		deployments = append(deployments, types.Deployment{
			Dir:       dir,
			Path:      p,
			Timestamp: time.UnixMilli(millis).UTC(),
		})
	}

	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].Timestamp.After(deployments[j].Timestamp)
	})
	if len(deployments) > 0 {
		deployments[0].Current = true
	}
	return deployments
}
