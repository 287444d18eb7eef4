package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"framefarm/internal/framecheck"
	"framefarm/internal/style"
)

func newVerifyFramesCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		p      framecheck.Pattern
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "verify-frames <dir>",
		Short: "Report gaps in a directory of downloaded frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyFrames(stdout, stderr, args[0], p, asJSON)
		},
	}
	cmd.Flags().StringVar(&p.Prefix, "prefix", "frame_", "Frame file name prefix")
	cmd.Flags().IntVar(&p.Digits, "digits", 4, "Minimum digits in the frame number")
	cmd.Flags().StringVar(&p.Ext, "ext", ".exr", "Frame file extension")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func runVerifyFrames(stdout, stderr io.Writer, dir string, p framecheck.Pattern, asJSON bool) error {
	res, err := framecheck.Missing(dir, p)
	if err != nil {
		return printErr(stderr, err)
	}

	if asJSON {
		if res.Missing == nil {
			res.Missing = []int{}
		}
		_ = json.NewEncoder(stdout).Encode(res)
	} else {
		switch {
		case res.Found == 0:
			fmt.Fprintln(stdout, style.Warn("no frames matching %s in %s", res.Pattern.Name(0), dir))
		case res.Complete():
			fmt.Fprintln(stdout, style.Pass("%d frames, %d-%d, none missing", res.Found, res.First, res.Last))
		default:
			fmt.Fprintln(stdout, style.Fail("%d of %d frames missing between %d and %d",
				len(res.Missing), res.Last-res.First+1, res.First, res.Last))
			for _, name := range res.MissingNames() {
				fmt.Fprintln(stdout, "  "+name)
			}
		}
	}

	if !res.Complete() {
		return errExit
	}
	return nil
}
