package deployer

import (
	"context"
	"strings"
	"testing"
)

func TestTemplateCommand(t *testing.T) {
	target := Target{AppName: "api", Root: "/srv/apps", DeployDir: "api_3000", DeployPath: "/srv/apps/api_3000"}

	tests := []struct {
		name        string
		text        string
		want        string
		parseError  bool
		renderError bool
	}{
		{
			name: "deploy path",
			text: "cd {{.DeployPath}} && docker compose up -d",
			want: "cd /srv/apps/api_3000 && docker compose up -d",
		},
		{
			name: "all fields",
			text: "{{.AppName}} {{.Root}} {{.DeployDir}}",
			want: "api /srv/apps api_3000",
		},
		{
			name: "static command",
			text: "  sudo systemctl stop api  ",
			want: "sudo systemctl stop api",
		},
		{
			name:       "empty",
			text:       "   ",
			parseError: true,
		},
		{
			name:       "syntax error",
			text:       "cd {{.DeployPath",
			parseError: true,
		},
		{
			name:        "unknown field",
			text:        "cd {{.Nope}}",
			renderError: true,
		},
		{
			name:        "renders empty",
			text:        "{{if false}}x{{end}}",
			renderError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewTemplateCommand("up", tt.text)
			if tt.parseError {
				if err == nil {
					t.Fatal("Expected parse error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected parse error: %v", err)
			}

			got, err := cmd.Command(context.Background(), target)
			if tt.renderError {
				if err == nil {
					t.Fatalf("Expected render error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected render error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
			if cmd.String() != tt.text {
				t.Errorf("String() = %q, want %q", cmd.String(), tt.text)
			}
		})
	}
}

func TestTemplateCommandErrorNamesCommand(t *testing.T) {
	_, err := NewTemplateCommand("down", "")
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Errorf("Expected error naming the down command, got %v", err)
	}
}

func TestCommandFunc(t *testing.T) {
	f := CommandFunc(func(_ context.Context, tg Target) (string, error) {
		return "echo " + tg.DeployPath, nil
	})
	got, err := f.Command(context.Background(), Target{DeployPath: "/srv/x"})
	if err != nil || got != "echo /srv/x" {
		t.Errorf("CommandFunc returned %q, %v", got, err)
	}
}
