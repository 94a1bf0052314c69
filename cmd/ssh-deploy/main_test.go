package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"golang.org/x/crypto/ssh"

	"github.com/jvreagan/ssh-deploy/pkg/logging"
	"github.com/jvreagan/ssh-deploy/pkg/runner"
	"github.com/jvreagan/ssh-deploy/pkg/runner/runnertest"
)

const testManifest = `version: "1.0"
application:
  name: api
  dir: ./app
target:
  user: deploy
  host: 203.0.113.10
  root: /srv/apps
identity:
  source: file
  path: ./id_ed25519
commands:
  down: pm2 delete api || true
  up: cd {{.DeployPath}} && pm2 start ecosystem.config.js --name api
`

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// setupProject writes a manifest, an application directory and a key into
// a temp dir and returns the manifest path.
func setupProject(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	if err := os.Mkdir(filepath.Join(dir, "app"), 0755); err != nil {
		t.Fatal(err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "id_ed25519"), pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatal(err)
	}

	manifestPath := filepath.Join(dir, "deploy-manifest.yaml")
	if err := os.WriteFile(manifestPath, []byte(testManifest+extra), 0644); err != nil {
		t.Fatalf("Failed to create test manifest: %v", err)
	}
	return manifestPath
}

func useFakeRunner(t *testing.T, fake *runnertest.Fake) {
	t.Helper()
	orig := newRunner
	newRunner = func(*logging.Console) runner.Runner { return fake }
	t.Cleanup(func() { newRunner = orig })
}

func execute(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute("version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "ssh-deploy version "+version) {
		t.Errorf("Expected version output, got: %s", out)
	}
}

func TestDeploy(t *testing.T) {
	fake := &runnertest.Fake{}
	useFakeRunner(t, fake)
	manifestPath := setupProject(t, "")

	out, _, err := execute("deploy", "-m", manifestPath)
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if !strings.Contains(out, "Successfully deployed api") {
		t.Errorf("Expected success banner, got: %s", out)
	}

	cmds := fake.Commands()
	if len(cmds) != 4 {
		t.Fatalf("Expected 4 commands, got %d", len(cmds))
	}
	if cmds[0].Name != "rsync" {
		t.Errorf("Expected rsync first, got %s", cmds[0].Name)
	}
	if !fake.Ran("pm2 start ecosystem.config.js --name api") {
		t.Error("Expected up command to run")
	}
	if !fake.Ran("sudo rm -rf") {
		t.Error("Expected prune with sudo by default")
	}
}

func TestDeployFailure(t *testing.T) {
	fake := &runnertest.Fake{FailOn: runnertest.FailAt(0, errors.New("rsync: connection refused"))}
	useFakeRunner(t, fake)
	manifestPath := setupProject(t, "")

	_, errOut, err := execute("deploy", "--manifest", manifestPath)
	if !errors.Is(err, errDeployFailed) {
		t.Fatalf("Expected errDeployFailed, got %v", err)
	}
	if !strings.Contains(errOut, "Yikes!") || !strings.Contains(errOut, "connection refused") {
		t.Errorf("Expected error block, got: %s", errOut)
	}
	if len(fake.Commands()) != 1 {
		t.Errorf("Expected no commands after failed upload, got %d", len(fake.Commands()))
	}
}

func TestDeployRecordsHistory(t *testing.T) {
	useFakeRunner(t, &runnertest.Fake{})
	manifestPath := setupProject(t, "prune:\n  sudo: false\nhistory:\n  provider: local\n  path: ./history\n")

	if _, _, err := execute("deploy", "-m", manifestPath); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}

	records, err := filepath.Glob(filepath.Join(filepath.Dir(manifestPath), "history", "api", "api_*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("Expected one history record, got %v", records)
	}
}

func TestDeployMissingAppDir(t *testing.T) {
	useFakeRunner(t, &runnertest.Fake{})
	manifestPath := setupProject(t, "")
	if err := os.Remove(filepath.Join(filepath.Dir(manifestPath), "app")); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute("deploy", "-m", manifestPath)
	if err == nil || !strings.Contains(err.Error(), "application directory") {
		t.Errorf("Expected application directory error, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	fake := &runnertest.Fake{
		Output: func(runner.Command) string {
			return "/srv/apps/api_1718000000000\n/srv/apps/api_1718000500000\n/srv/apps/web_1718000600000\n"
		},
	}
	useFakeRunner(t, fake)
	manifestPath := setupProject(t, "")

	out, _, err := execute("status", "-m", manifestPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "* /srv/apps/api_1718000500000") {
		t.Errorf("Expected newest deployment marked current, got: %s", out)
	}
	if !strings.Contains(out, "  /srv/apps/api_1718000000000") {
		t.Errorf("Expected older deployment listed, got: %s", out)
	}
	if strings.Contains(out, "web_") {
		t.Errorf("Expected other apps to be ignored, got: %s", out)
	}
}

func TestStatusEmpty(t *testing.T) {
	useFakeRunner(t, &runnertest.Fake{})
	manifestPath := setupProject(t, "")

	out, _, err := execute("status", "-m", manifestPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "No deployments of api found") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestValidate(t *testing.T) {
	manifestPath := setupProject(t, "")

	out, _, err := execute("validate", "-m", manifestPath)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "Manifest is valid") || !strings.Contains(out, "deploy@203.0.113.10:/srv/apps") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     func(t *testing.T) []string
		errorMsg string
	}{
		{
			name:     "missing manifest",
			args:     func(t *testing.T) []string { return []string{"validate", "-m", filepath.Join(t.TempDir(), "nope.yaml")} },
			errorMsg: "failed to read manifest file",
		},
		{
			name: "missing key",
			args: func(t *testing.T) []string {
				p := setupProject(t, "")
				os.Remove(filepath.Join(filepath.Dir(p), "id_ed25519"))
				return []string{"validate", "-m", p}
			},
			errorMsg: "failed to resolve identity",
		},
		{
			name:     "unexpected argument",
			args:     func(t *testing.T) []string { return []string{"validate", "extra"} },
			errorMsg: "unknown command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(tt.args(t)...)
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}
