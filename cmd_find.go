package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/spf13/cobra"

	"github.com/datawire/unearth/pkg/cliutil"
	"github.com/datawire/unearth/pkg/evaluator"
	"github.com/datawire/unearth/pkg/python/pep508"
)

type packageOutput struct {
	Name    string     `json:"name"`
	Version string     `json:"version,omitempty"`
	Link    linkOutput `json:"link"`
}

type linkOutput struct {
	URL            string  `json:"url"`
	ComesFrom      string  `json:"comes_from,omitempty"`
	YankReason     *string `json:"yank_reason"`
	RequiresPython string  `json:"requires_python,omitempty"`
	UploadTime     string  `json:"upload_time,omitempty"`
}

func toOutput(pkg evaluator.Package) packageOutput {
	out := packageOutput{
		Name: pkg.Name,
		Link: linkOutput{
			URL:            pkg.Link.Redacted(),
			ComesFrom:      pkg.Link.ComesFrom,
			YankReason:     pkg.Link.YankReason,
			RequiresPython: pkg.Link.RequiresPython,
		},
	}
	if pkg.Version != nil {
		out.Version = pkg.Version.String()
	}
	if !pkg.Link.UploadTime.IsZero() {
		out.Link.UploadTime = pkg.Link.UploadTime.Format(time.RFC3339)
	}
	return out
}

func init() {
	var ff finderFlags
	var argAll, argLinkOnly bool
	var argDownload string
	cmd := &cobra.Command{
		Use:   "find [flags] REQUIREMENT",
		Short: "Find the best distribution for a requirement",
		Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),

		Long: "Given a PEP 508 requirement (e.g. 'requests>=2.25'), query the configured " +
			"package indexes and find-links locations and report the best matching " +
			"distribution as JSON, or every applicable one with --all.",

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

			selected := []evaluator.Package{*match.Best}
			if argAll {
				selected = match.Applicable
			}

			stdout := flags.OutOrStdout()
			if argLinkOnly {
				for _, pkg := range selected {
					fmt.Fprintln(stdout, pkg.Link.Redacted())
				}
			} else {
				out := make([]packageOutput, 0, len(selected))
				for _, pkg := range selected {
					out = append(out, toOutput(pkg))
				}
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			}

			if argDownload != "" {
				path, err := f.DownloadAndUnpack(ctx, match.Best.Link, argDownload, argDownload, nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(flags.ErrOrStderr(), "Saved to", path)
			}
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&argAll, "all", false,
		"Print every applicable distribution, not just the best one")
	cmd.Flags().BoolVar(&argLinkOnly, "link-only", false,
		"Print bare link URLs instead of JSON")
	cmd.Flags().StringVarP(&argDownload, "download", "d", "",
		"Also download (and unpack, for sdists) the best match into `DIR`")

	argparser.AddCommand(cmd)
}
