package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"framefarm/internal/coordinator"
	"framefarm/internal/jobconfig"
	"framefarm/internal/pkg/errors"
)

type planChunk struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type planOutput struct {
	coordinator.Plan
	Chunks []planChunk `json:"chunks"`
}

func newPlanCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		job    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how a job would be chunked without rendering it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, stdout, stderr, job, asJSON)
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "Job profile to plan (default: the file's current job)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func runPlan(cmd *cobra.Command, stdout, stderr io.Writer, job string, asJSON bool) error {
	spec, err := jobconfig.Load(jobsPath(cmd), job)
	if err != nil {
		return printErr(stderr, err)
	}
	plan, err := coordinator.PlanJob(spec)
	if err != nil {
		return printErr(stderr, err)
	}

	if !asJSON {
		printPlan(stdout, plan)
		return nil
	}

	out := planOutput{Plan: plan, Chunks: make([]planChunk, len(plan.Chunks))}
	for i, c := range plan.Chunks {
		out.Chunks[i] = planChunk{ID: c.ID(), Start: c.Start, End: c.End}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return printErr(stderr, errors.Wrap(err, "plan.encode", "write plan"))
	}
	return nil
}
