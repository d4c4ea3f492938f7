package main

import (
	"fmt"

	"github.com/datawire/dlib/derror"
	"github.com/spf13/cobra"

	"github.com/datawire/unearth/pkg/cliutil"
	"github.com/datawire/unearth/pkg/python/pep508"
)

func init() {
	var ff finderFlags
	var argDownloadDir string
	cmd := &cobra.Command{
		Use:   "download [flags] REQUIREMENT DEST_DIRECTORY",
		Short: "Download the best distribution for a requirement",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(2)),

		Long: "Find the best matching distribution for a PEP 508 requirement and materialize " +
			"it under DEST_DIRECTORY: wheels are downloaded as-is, sdists are downloaded " +
			"and extracted, and VCS requirements are checked out.",

		RunE: func(flags *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = derror.PanicToError(r)
				}
			}()
			ctx := flags.Context()

			req, err := pep508.ParseRequirement(args[0])
			if err != nil {
				return err
			}
			f, err := ff.buildFinder()
			if err != nil {
				return err
			}

			match := f.FindBestMatch(ctx, req, nil, nil)
			if match.Best == nil {
				return fmt.Errorf("no matches found for %s", args[0])
			}

			path, err := f.DownloadAndUnpack(ctx, match.Best.Link, args[1], argDownloadDir, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(flags.OutOrStdout(), path)
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&argDownloadDir, "download-dir", "",
		"Keep the downloaded archive in `DIR` instead of DEST_DIRECTORY")

	argparser.AddCommand(cmd)
}
