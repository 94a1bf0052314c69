// Package remote builds the ssh and rsync invocations used to reach a
// deployment host, and the shell commands run on it.
//
// Host-key checking is disabled and known hosts are never persisted.
// This is only acceptable for trusted or ephemeral deployment targets.
package remote

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/jvreagan/ssh-deploy/pkg/runner"
)

// Target identifies a remote host and how to authenticate to it.
type Target struct {
	User         string
	Host         string
	IdentityFile string
}

// Address returns user@host.
func (t Target) Address() string {
	return t.User + "@" + t.Host
}

// SSHOptions returns the options shared by every ssh connection, including
// the one rsync opens.
func SSHOptions(identityFile string) []string {
	return []string{
		"-i", identityFile,
		"-o", "LogLevel=ERROR",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
	}
}

// SSHCommand returns the invocation that runs remoteCmd on the target as a
// single remote shell command.
func SSHCommand(t Target, remoteCmd string) runner.Command {
	args := append(SSHOptions(t.IdentityFile), t.Address(), remoteCmd)
	return runner.Command{Name: "ssh", Args: args}
}

// RsyncCommand returns the invocation that mirrors the contents of srcDir
// into destPath on the target. Files deleted locally are deleted remotely
// and .gitignore rules found in the tree are honored. The command runs
// from srcDir so filter rules resolve relative to it; a relative srcDir is
// therefore passed to rsync as "./".
func RsyncCommand(t Target, srcDir, destPath string) runner.Command {
	// rsync splits -e on whitespace but honors quotes
	opts := SSHOptions(Quote(t.IdentityFile))
	transport := "ssh " + strings.Join(opts, " ")

	src := NormalizeSource(srcDir)
	if !filepath.IsAbs(srcDir) {
		src = "./"
	}
	return runner.Command{
		Name: "rsync",
		Args: []string{
			"-azP",
			"-e", transport,
			"--progress",
			"--delete",
			"--filter", ":- .gitignore",
			src,
			t.Address() + ":" + destPath,
		},
		Dir: srcDir,
	}
}

// NormalizeSource makes dir end in exactly one slash so rsync copies the
// directory's contents rather than the directory itself.
func NormalizeSource(dir string) string {
	trimmed := strings.TrimRight(dir, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed + "/"
}

// DeployDir returns the directory name for a deployment of app at the
// given Unix millisecond timestamp.
func DeployDir(app string, millis int64) string {
	return fmt.Sprintf("%s_%d", app, millis)
}

// DeployPath joins a remote root and a deployment directory. Remote hosts
// are POSIX, so forward slashes are used regardless of the local OS.
func DeployPath(root, deployDir string) string {
	return path.Join(root, deployDir)
}

// ListCommand returns a remote shell command printing the path of every
// deployment directory of app under root, one per line.
func ListCommand(root, app string) string {
	// find echoes the root verbatim, so a trailing slash would produce
	// paths that never match the cleaned keepPath.
	return fmt.Sprintf("find %s -mindepth 1 -maxdepth 1 -type d -name %s",
		Quote(path.Clean(root)), Quote(app+"_*"))
}

// PruneCommand returns a remote shell command that removes every deployment
// directory of app under root except keepPath. The exclusion matches whole
// lines, so only keepPath itself is kept.
func PruneCommand(root, app, keepPath string, sudo bool) string {
	rm := "rm -rf \"{}\""
	if sudo {
		rm = "sudo " + rm
	}
	return fmt.Sprintf("%s | grep -vxF %s | xargs -r -I{} %s",
		ListCommand(root, app), Quote(path.Clean(keepPath)), rm)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
