package deployer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// Target describes the deployment a stop or start command is built for.
type Target struct {
	// Application name
	AppName string

	// Remote root holding every deployment directory
	Root string

	// Name of the new deployment directory (e.g. "api_1718000000000")
	DeployDir string

	// Absolute remote path of the new deployment directory
	DeployPath string
}

// CommandBuilder produces the shell command run on the remote host to stop
// or start the application. The deployer knows nothing about the process
// manager in use; it only runs the returned string over ssh.
type CommandBuilder interface {
	Command(ctx context.Context, t Target) (string, error)
}

// CommandFunc adapts an ordinary function to a CommandBuilder.
type CommandFunc func(ctx context.Context, t Target) (string, error)

// Command implements CommandBuilder.
func (f CommandFunc) Command(ctx context.Context, t Target) (string, error) {
	return f(ctx, t)
}

// TemplateCommand renders a text/template against the Target, for example
//
//	cd {{.DeployPath}} && pm2 start ecosystem.config.js
type TemplateCommand struct {
	source string
	tmpl   *template.Template
}

// NewTemplateCommand parses text. Referencing a field Target does not have
// is reported when the command is rendered.
func NewTemplateCommand(name, text string) (*TemplateCommand, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s command is empty", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s command: %w", name, err)
	}
	return &TemplateCommand{source: text, tmpl: tmpl}, nil
}

// Command implements CommandBuilder.
func (c *TemplateCommand) Command(_ context.Context, t Target) (string, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("failed to render %s command: %w", c.tmpl.Name(), err)
	}
	cmd := strings.TrimSpace(buf.String())
	if cmd == "" {
		return "", fmt.Errorf("%s command rendered to an empty string", c.tmpl.Name())
	}
	return cmd, nil
}

// String returns the unrendered template.
func (c *TemplateCommand) String() string {
	return c.source
}
