package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"framefarm/internal/session"
	"framefarm/internal/style"
)

func newDownloadCmd(stdout, stderr io.Writer) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "download <session-id>",
		Short: "Copy the rendered frames of a session to a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, stdout, stderr, args[0], dest)
		},
	}
	cmd.Flags().StringVar(&dest, "dest", ".", "Destination directory")
	return cmd
}

func runDownload(cmd *cobra.Command, stdout, stderr io.Writer, id, dest string) error {
	sess, err := session.Parse(id)
	if err != nil {
		return printErr(stderr, err)
	}
	store, err := openStore()
	if err != nil {
		return printErr(stderr, err)
	}

	written, err := session.NewDownloader(store, sess, cliLogger(cmd, stderr)).DownloadFrames(cmd.Context(), dest)
	if err != nil {
		return printErr(stderr, err)
	}
	if len(written) == 0 {
		fmt.Fprintln(stdout, style.Warn("session %s has no frames", sess.ID))
		return errExit
	}
	fmt.Fprintln(stdout, style.Pass("%d frames written to %s", len(written), dest))
	return nil
}
