// framefarm splits a render job into chunks and renders them on a farm of
// render nodes.
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"framefarm/internal/jobconfig"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/pkg/util"
	"framefarm/internal/style"
)

// Version metadata injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit signals a non-zero exit after the command has already written
// its own error to stderr.
var errExit = stderrors.New("exit")

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !stderrors.Is(err, errExit) {
			fmt.Fprintf(stderr, "framefarm: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "framefarm",
		Short:         "Chunked distributed rendering for Blender projects",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("jobs", util.Env("FRAMEFARM_JOBS_FILE", jobconfig.DefaultPath), "Job profile file (env FRAMEFARM_JOBS_FILE)")
	root.PersistentFlags().String("log-level", util.Env("LOG_LEVEL", "warn"), "Log level: debug, info, warn, error")
	root.PersistentFlags().String("color", "auto", "Color output: always, auto, never")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		mode, _ := cmd.Flags().GetString("color")
		return style.SetColorMode(mode)
	}

	root.AddCommand(
		newSubmitCmd(stdout, stderr),
		newPlanCmd(stdout, stderr),
		newVerifyFramesCmd(stdout, stderr),
		newDownloadCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the framefarm version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "framefarm %s (%s)\n", version, commit)
		},
	}
}

// cliLogger logs to stderr so stdout only carries the report.
func cliLogger(cmd *cobra.Command, stderr io.Writer) *logger.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logger.New(logger.Config{
		Level:       level,
		Format:      util.Env("LOG_FORMAT", "text"),
		Output:      stderr,
		ServiceName: "framefarm",
	})
}

func jobsPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("jobs")
	return p
}
