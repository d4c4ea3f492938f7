package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/datawire/unearth/pkg/evaluator"
	"github.com/datawire/unearth/pkg/finder"
)

// PyPIIndexURL is the default package index.
const PyPIIndexURL = "https://pypi.org/simple/"

// finderFlags is the flag set shared by the subcommands that construct a
// PackageFinder.
type finderFlags struct {
	indexURLs    []string
	findLinks    []string
	trustedHosts []string
	configFile   string

	noBinary     []string
	onlyBinary   []string
	preferBinary []string

	pythonVersion string
	impl          string
	abis          []string
	platforms     []string

	ignoreCompatibility bool
	respectSourceOrder  bool
	excludeNewer        string
}

func (ff *finderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&ff.indexURLs, "index-url", "i", nil,
		"Base `URL` of a package index (default "+PyPIIndexURL+")")
	cmd.Flags().StringArrayVarP(&ff.findLinks, "find-link", "f", nil,
		"An extra `LOCATION` to look for archives: a page of links, a local archive, or a local directory")
	cmd.Flags().StringArrayVar(&ff.trustedHosts, "trusted-host", nil,
		"A `HOST[:PORT]` to exempt from the secure-origin policy and TLS verification")
	cmd.Flags().StringVar(&ff.configFile, "config", "",
		"A YAML `FILE` listing index-urls, find-links, and trusted-hosts")

	cmd.Flags().StringArrayVar(&ff.noBinary, "no-binary", nil,
		"Exclude wheels for `PACKAGE` (may be ':all:')")
	cmd.Flags().StringArrayVar(&ff.onlyBinary, "only-binary", nil,
		"Exclude sdists for `PACKAGE` (may be ':all:')")
	cmd.Flags().StringArrayVar(&ff.preferBinary, "prefer-binary", nil,
		"Prefer wheels over newer sdists for `PACKAGE` (may be ':all:')")

	cmd.Flags().StringVar(&ff.pythonVersion, "python-version", "",
		"Python `VERSION` (e.g. '3.9') to find candidates for")
	cmd.Flags().StringVar(&ff.impl, "impl", "",
		"Python implementation tag (e.g. 'cp')")
	cmd.Flags().StringArrayVar(&ff.abis, "abis", nil,
		"Supported ABI tags (e.g. 'cp39')")
	cmd.Flags().StringArrayVar(&ff.platforms, "platforms", nil,
		"Supported platform tags (e.g. 'manylinux2014_x86_64')")

	cmd.Flags().BoolVar(&ff.ignoreCompatibility, "ignore-compatibility", false,
		"Accept wheels for any platform and skip requires-python checks")
	cmd.Flags().BoolVar(&ff.respectSourceOrder, "respect-source-order", false,
		"Rank candidates from an earlier source above candidates from a later one")
	cmd.Flags().StringVar(&ff.excludeNewer, "exclude-newer", "",
		"Hide files uploaded after `TIMESTAMP` (RFC 3339)")
}

// sourceConfig is the --config file schema.
type sourceConfig struct {
	IndexURLs    []string `yaml:"index-urls"`
	FindLinks    []string `yaml:"find-links"`
	TrustedHosts []string `yaml:"trusted-hosts"`
}

func (ff *finderFlags) buildFinder() (*finder.PackageFinder, error) {
	indexURLs := ff.indexURLs
	findLinks := ff.findLinks
	trustedHosts := ff.trustedHosts
	if ff.configFile != "" {
		content, err := os.ReadFile(ff.configFile)
		if err != nil {
			return nil, err
		}
		var cfg sourceConfig
		if err := yaml.UnmarshalStrict(content, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", ff.configFile, err)
		}
		indexURLs = append(indexURLs, cfg.IndexURLs...)
		findLinks = append(findLinks, cfg.FindLinks...)
		trustedHosts = append(trustedHosts, cfg.TrustedHosts...)
	}
	if len(indexURLs) == 0 && len(findLinks) == 0 {
		indexURLs = []string{PyPIIndexURL}
	}

	target, err := ff.buildTargetPython()
	if err != nil {
		return nil, err
	}

	var excludeNewer time.Time
	if ff.excludeNewer != "" {
		excludeNewer, err = time.Parse(time.RFC3339, ff.excludeNewer)
		if err != nil {
			return nil, fmt.Errorf("invalid --exclude-newer: %w", err)
		}
	}

	return finder.NewPackageFinder(finder.Options{
		IndexURLs:           indexURLs,
		FindLinks:           findLinks,
		TrustedHosts:        trustedHosts,
		TargetPython:        target,
		IgnoreCompatibility: ff.ignoreCompatibility,
		NoBinary:            ff.noBinary,
		OnlyBinary:          ff.onlyBinary,
		PreferBinary:        ff.preferBinary,
		RespectSourceOrder:  ff.respectSourceOrder,
		ExcludeNewerThan:    excludeNewer,
	})
}

func (ff *finderFlags) buildTargetPython() (*evaluator.TargetPython, error) {
	if ff.pythonVersion == "" && ff.impl == "" && len(ff.abis) == 0 && len(ff.platforms) == 0 {
		return nil, nil
	}
	var pyVer []int
	if ff.pythonVersion != "" {
		for _, part := range strings.Split(ff.pythonVersion, ".") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid --python-version %q", ff.pythonVersion)
			}
			pyVer = append(pyVer, n)
		}
	}
	return &evaluator.TargetPython{
		PyVer:     pyVer,
		Impl:      ff.impl,
		ABIs:      ff.abis,
		Platforms: ff.platforms,
	}, nil
}
