package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"visor/internal/app"
	"visor/internal/domain"
	"visor/internal/state"
)

type appRunner interface {
	SetVerbose(verbose bool)
	RunWizard(opts app.WizardOptions) error
	RunStatus(project string, jsonOut bool) (int, error)
	RunSet(opts app.SetOptions) (int, error)
	RunImport(path string) (int, error)
	RunProjects() (int, error)
	RunConfigDefault(project string) (int, error)
}

type runDeps struct {
	userHomeDir func() (string, error)
	newApp      func(paths state.Paths, stdout io.Writer, stderr io.Writer) appRunner
}

type runtimeState struct {
	stdout io.Writer
	stderr io.Writer
	quiet  bool

	deps runDeps
	app  appRunner
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func defaultRunDeps() runDeps {
	return runDeps{
		userHomeDir: os.UserHomeDir,
		newApp: func(paths state.Paths, stdout io.Writer, stderr io.Writer) appRunner {
			return app.New(paths, stdout, stderr)
		},
	}
}

func Run(args []string, stdout io.Writer, stderr io.Writer) int {
	return runWithDeps(args, stdout, stderr, defaultRunDeps())
}

func runWithDeps(args []string, stdout io.Writer, stderr io.Writer, deps runDeps) int {
	runtime := &runtimeState{
		stdout: stdout,
		stderr: stderr,
		deps:   deps,
	}

	cmd := newRootCommand(runtime)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var codedErr *exitError
	if errors.As(err, &codedErr) {
		if codedErr.err != nil {
			fmt.Fprintln(stderr, codedErr.err)
		}
		if codedErr.code == 0 {
			return 2
		}
		return codedErr.code
	}

	fmt.Fprintln(stderr, err)
	return 2
}

func (r *runtimeState) appRunner() (appRunner, error) {
	if r.app != nil {
		return r.app, nil
	}

	home, err := r.deps.userHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home: %w", err)
	}

	a := r.deps.newApp(state.NewPaths(home), r.stdout, r.stderr)
	a.SetVerbose(!r.quiet)
	r.app = a
	return r.app, nil
}

func newRootCommand(runtime *runtimeState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "visor",
		Short:         "Bulk privacy changes for project trees.",
		Long:          "visor registers project trees locally and walks their visibility through a guarded warning/select/confirm flow.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Help(); err != nil {
				return withExitCode(2, err)
			}
			return withExitCode(2, errors.New("a command is required"))
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(2, err)
	})

	cmd.PersistentFlags().BoolVarP(&runtime.quiet, "quiet", "q", false, "Suppress verbose visor logs.")

	cmd.AddCommand(
		newWizardCommand(runtime),
		newStatusCommand(runtime),
		newSetCommand(runtime),
		newImportCommand(runtime),
		newProjectsCommand(runtime),
		newConfigCommand(runtime),
	)
	cmd.AddCommand(newCompletionCommand(runtime, cmd))

	return cmd
}

func withExitCode(code int, err error) error {
	if err == nil {
		if code == 0 {
			return nil
		}
		return &exitError{code: code}
	}
	if code == 0 {
		code = 2
	}
	return &exitError{code: code, err: err}
}

func newWizardCommand(runtime *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "wizard [project]",
		Short: "Open the interactive privacy wizard for a project.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			runner, err := runtime.appRunner()
			if err != nil {
				return withExitCode(2, err)
			}
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			return withExitCode(0, runner.RunWizard(app.WizardOptions{Project: project}))
		},
	}
}

func newStatusCommand(runtime *runtimeState) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [project]",
		Short: "Show the visibility tree of a registered project.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			runner, err := runtime.appRunner()
			if err != nil {
				return withExitCode(2, err)
			}
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			code, err := runner.RunStatus(project, jsonOut)
			return withExitCode(code, err)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the visibility tree as JSON.")

	return cmd
}

func newSetCommand(runtime *runtimeState) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "set <node-id> <public|private>",
		Short: "Set one node's visibility without the wizard.",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			visibility, err := domain.ParseVisibility(args[1])
			if err != nil {
				return withExitCode(2, err)
			}

			runner, err := runtime.appRunner()
			if err != nil {
				return withExitCode(2, err)
			}
			code, err := runner.RunSet(app.SetOptions{
				Project:    project,
				NodeID:     args[0],
				Visibility: visibility,
			})
			return withExitCode(code, err)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project to change instead of the configured default.")

	return cmd
}

func newImportCommand(runtime *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Register a project tree from a YAML file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			runner, err := runtime.appRunner()
			if err != nil {
				return withExitCode(2, err)
			}
			code, err := runner.RunImport(args[0])
			return withExitCode(code, err)
		},
	}
}

func newProjectsCommand(runtime *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List registered projects and mark the default.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			runner, err := runtime.appRunner()
			if err != nil {
				return withExitCode(2, err)
			}
			code, err := runner.RunProjects()
			return withExitCode(code, err)
		},
	}
}

func newConfigCommand(runtime *runtimeState) *cobra.Command {
	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Manage visor configuration.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Help(); err != nil {
				return withExitCode(2, err)
			}
			return withExitCode(2, errors.New("config subcommand is required"))
		},
	}

	defaultCmd := &cobra.Command{
		Use:   "default <project>",
		Short: "Set the default project for wizard/status/set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			runner, err := runtime.appRunner()
			if err != nil {
				return withExitCode(2, err)
			}
			code, err := runner.RunConfigDefault(args[0])
			return withExitCode(code, err)
		},
	}

	configCmd.AddCommand(defaultCmd)
	return configCmd
}

func newCompletionCommand(runtime *runtimeState, root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts.",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(_ *cobra.Command, args []string) error {
			var err error
			switch args[0] {
			case "bash":
				err = root.GenBashCompletionV2(runtime.stdout, true)
			case "zsh":
				err = root.GenZshCompletion(runtime.stdout)
			case "fish":
				err = root.GenFishCompletion(runtime.stdout, true)
			case "powershell":
				err = root.GenPowerShellCompletionWithDesc(runtime.stdout)
			default:
				err = fmt.Errorf("unsupported shell %q", args[0])
			}
			return withExitCode(0, err)
		},
	}
}
