package deployer

import (
	"fmt"
	"path"
	"regexp"
)

// appNamePattern keeps application names safe inside directory names and
// the find -name glob used for pruning.
var appNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config describes one deployment of an application to one host.
// It is read-only while a deployment runs.
type Config struct {
	// Application name, used in directory names and console output
	AppName string

	// Local directory whose contents are uploaded
	AppDir string

	// Remote login user
	User string

	// Remote host name or address
	Host string

	// Remote directory under which deployment directories are created
	Root string

	// Path to the SSH private key used for every connection
	IdentityFile string

	// Builds the command that stops the previous deployment
	Down CommandBuilder

	// Builds the command that starts the new deployment
	Up CommandBuilder
}

// Validate checks that every field needed for a deployment is present.
func (c Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("application name is required")
	}
	if !appNamePattern.MatchString(c.AppName) {
		return fmt.Errorf("application name %q may only contain letters, digits, '.', '_' and '-'", c.AppName)
	}
	if c.AppDir == "" {
		return fmt.Errorf("application directory is required")
	}
	if c.User == "" {
		return fmt.Errorf("remote user is required")
	}
	if c.Host == "" {
		return fmt.Errorf("remote host is required")
	}
	if c.Root == "" {
		return fmt.Errorf("remote root is required")
	}
	if !path.IsAbs(c.Root) {
		return fmt.Errorf("remote root %q must be an absolute path", c.Root)
	}
	if path.Clean(c.Root) == "/" {
		return fmt.Errorf("remote root must not be /")
	}
	if c.IdentityFile == "" {
		return fmt.Errorf("identity file is required")
	}
	if c.Down == nil {
		return fmt.Errorf("down command is required")
	}
	if c.Up == nil {
		return fmt.Errorf("up command is required")
	}
	return nil
}
