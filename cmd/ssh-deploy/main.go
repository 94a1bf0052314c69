package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jvreagan/ssh-deploy/pkg/deployer"
	"github.com/jvreagan/ssh-deploy/pkg/history"
	"github.com/jvreagan/ssh-deploy/pkg/identity"
	"github.com/jvreagan/ssh-deploy/pkg/logging"
	"github.com/jvreagan/ssh-deploy/pkg/manifest"
	"github.com/jvreagan/ssh-deploy/pkg/runner"
)

// Version information (set via ldflags during build)
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

// errDeployFailed is returned once the failure has already been printed.
var errDeployFailed = errors.New("deployment failed")

// newRunner is replaced in tests.
var newRunner = func(console *logging.Console) runner.Runner {
	return runner.NewExecRunner(console)
}

var (
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

type options struct {
	manifestFile string
	debug        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errDeployFailed) {
			red.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ssh-deploy",
		Short: "Deploy an application directory to a server over SSH",
		Long: `ssh-deploy uploads an application to a fresh timestamped directory on a
remote host with rsync, stops the running version, starts the new one and
removes older deployment directories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				logging.SetDebug(true)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.manifestFile, "manifest", "m", "deploy-manifest.yaml", "Path to deployment manifest file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newDeployCmd(opts),
		newStatusCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newDeployCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Upload and start a new version of the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			m, err := loadManifest(opts.manifestFile)
			if err != nil {
				return err
			}
			if err := m.CheckAppDir(); err != nil {
				return err
			}

			id, err := identity.Resolve(ctx, m)
			if err != nil {
				return fmt.Errorf("failed to resolve identity: %w", err)
			}
			defer id.Close()

			cfg, err := m.Config(id.Path)
			if err != nil {
				return err
			}

			console := logging.NewConsoleTo(m.Application.Name, out, errOut)
			deployOpts := []deployer.Option{
				deployer.WithOutput(out, errOut),
				deployer.WithSudo(m.SudoPrune()),
			}
			if m.History != nil {
				rec, err := history.NewRecorder(ctx, m)
				if err != nil {
					console.Warn(fmt.Sprintf("deployment history disabled: %v", err))
				} else {
					defer rec.Close()
					deployOpts = append(deployOpts, deployer.WithRecorder(rec))
				}
			}

			result := deployer.New(newRunner(console), deployOpts...).Run(ctx, cfg)
			if !result.Succeeded() {
				return errDeployFailed
			}
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List deployment directories on the remote host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			m, err := loadManifest(opts.manifestFile)
			if err != nil {
				return err
			}
			id, err := identity.Resolve(ctx, m)
			if err != nil {
				return fmt.Errorf("failed to resolve identity: %w", err)
			}
			defer id.Close()

			cfg, err := m.Config(id.Path)
			if err != nil {
				return err
			}

			deployments, err := deployer.New(newRunner(nil)).Status(ctx, cfg)
			if err != nil {
				return err
			}
			if len(deployments) == 0 {
				fmt.Fprintf(out, "No deployments of %s found in %s on %s\n", cfg.AppName, cfg.Root, cfg.Host)
				return nil
			}

			fmt.Fprintf(out, "Deployments of %s on %s:\n", cfg.AppName, cfg.Host)
			for _, d := range deployments {
				marker := "  "
				if d.Current {
					marker = green.Sprint("* ")
				}
				fmt.Fprintf(out, "%s%s  %s\n", marker, d.Path, d.Timestamp.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the manifest, application directory and SSH key without contacting the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			m, err := loadManifest(opts.manifestFile)
			if err != nil {
				return err
			}
			if err := m.CheckAppDir(); err != nil {
				return err
			}
			id, err := identity.Resolve(cmd.Context(), m)
			if err != nil {
				return fmt.Errorf("failed to resolve identity: %w", err)
			}
			defer id.Close()

			cfg, err := m.Config(id.Path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			green.Fprintln(out, "✓ Manifest is valid")
			fmt.Fprintf(out, "  Application: %s (%s)\n", cfg.AppName, cfg.AppDir)
			fmt.Fprintf(out, "  Target: %s@%s:%s\n", cfg.User, cfg.Host, cfg.Root)
			fmt.Fprintf(out, "  Identity: %s\n", m.Identity.Source)
			if m.History != nil {
				fmt.Fprintf(out, "  History: %s\n", m.History.Provider)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ssh-deploy version %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built: %s\n", date)
		},
	}
}

func loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading manifest: %w", err)
	}
	return m, nil
}
