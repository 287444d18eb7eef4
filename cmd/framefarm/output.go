package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"framefarm/internal/coordinator"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/report"
	"framefarm/internal/session"
	"framefarm/internal/style"
)

// printErr reports err on stderr and returns errExit.
func printErr(stderr io.Writer, err error) error {
	var jf *report.JobFailedError
	if errors.As(err, &jf) {
		spans := make([]string, 0, len(jf.FailedRanges()))
		for _, s := range jf.FailedRanges() {
			spans = append(spans, s.String())
		}
		fmt.Fprintln(stderr, style.Fail("job failed: %d chunk(s) did not render (frames %s)", len(spans), strings.Join(spans, ", ")))
		return errExit
	}

	kind := "error"
	switch errors.GetCode(err) {
	case errors.CodeConfig:
		kind = "configuration error"
	case errors.CodeValidation:
		kind = "validation error"
	}
	fmt.Fprintln(stderr, style.Fail("%s: %v", kind, err))
	return errExit
}

func printPlan(w io.Writer, plan coordinator.Plan) {
	fmt.Fprintf(w, "%s %s: %d frames, chunk size %d, %d chunks\n",
		style.Bold.Render("job"), plan.Job, plan.Frames, plan.ChunkSize, len(plan.Chunks))
	for _, c := range plan.Chunks {
		fmt.Fprintf(w, "  %-24s %s\n", c.ID(), style.Dim.Render(fmt.Sprintf("%d frames", c.FrameCount())))
	}
}

func printReport(w io.Writer, res *coordinator.Result) {
	rep := res.Report
	fmt.Fprintf(w, "%s %s  session %s\n", style.Bold.Render("job"), rep.Job, res.Session.ID)
	for _, e := range rep.Entries {
		if e.OK {
			fmt.Fprintln(w, "  "+style.Pass("%s", e.ChunkID))
			continue
		}
		cause := e.Error
		if cause == "" {
			cause = fmt.Sprintf("unexpected result %q", e.Message)
		}
		fmt.Fprintln(w, "  "+style.Fail("%s: %s", e.ChunkID, cause))
	}

	sum := rep.Summary()
	fmt.Fprintf(w, "%d/%d chunks rendered, %d frames in %s\n",
		sum.Succeeded, sum.Chunks, sum.Frames-sum.FailedFrames, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	if sum.Succeeded > 0 {
		fmt.Fprintf(w, "download: %s\n", session.DownloadCommand(res.Session, ""))
	}
}
