package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"framefarm/internal/coordinator"
	"framefarm/internal/dispatch"
	"framefarm/internal/jobconfig"
	"framefarm/internal/style"
)

func newSubmitCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		job          string
		transport    string
		concurrency  int
		chunkTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload a project, render it in chunks and report the outcome",
		Long: `Submit renders one job profile from the jobs file.

The project is uploaded under a fresh session, split into chunks and
dispatched to the render nodes. Every chunk is reported; the command exits
non-zero if any chunk failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, stdout, stderr, job, transport, dispatch.Options{
				MaxConcurrency: concurrency,
				ChunkTimeout:   chunkTimeout,
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Job profile to render (default: the file's current job)")
	cmd.Flags().StringVar(&transport, "transport", transportHTTP, "Chunk transport: http or redis")
	cmd.Flags().IntVar(&concurrency, "concurrency", dispatch.DefaultMaxConcurrency, "Maximum chunks in flight")
	cmd.Flags().DurationVar(&chunkTimeout, "chunk-timeout", dispatch.DefaultChunkTimeout, "Time limit for a single chunk")
	return cmd
}

func runSubmit(cmd *cobra.Command, stdout, stderr io.Writer, job, transport string, opts dispatch.Options) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := cliLogger(cmd, stderr)

	spec, err := jobconfig.Load(jobsPath(cmd), job)
	if err != nil {
		return printErr(stderr, err)
	}

	env, err := openSubmitEnv(ctx, transport)
	if err != nil {
		return printErr(stderr, err)
	}
	defer env.close()

	coord := coordinator.New(coordinator.Deps{
		Store:     env.store,
		Invokers:  env.invokers,
		Runs:      env.runs,
		Transport: transport,
		Dispatch:  opts,
		Log:       log,
	})

	sp := style.StartSpinner(stderr, "rendering "+spec.Name())
	res, err := coord.Run(ctx, spec)
	sp.Stop()

	if res != nil {
		printReport(stdout, res)
	}
	if err != nil {
		return printErr(stderr, err)
	}
	return nil
}
