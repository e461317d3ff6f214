package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dargueta/breakexfat/breaker"
	"github.com/dargueta/breakexfat/config"
	"github.com/dargueta/breakexfat/volume"
	"github.com/gocarina/gocsv"
	"github.com/golang/glog"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var version = "0.1.0"

func main() {
	app := newApp(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", app.Name, err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}

func newApp(fs afero.Fs, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "breakexfat",
		Usage:     "break an exFAT filesystem image",
		UsageText: "breakexfat [OPTION]... IMAGE_PATH [PATTERN_LIST]",
		Description: "PATTERN_LIST is a comma-separated list of pattern indexes, each\n" +
			"optionally followed by :VARIANT (e.g. \"0,4:1,8\"). Use --list to see them.",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "apply every break pattern",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "YAML `FILE` with default settings and pattern selections",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "`LEVEL` of logging: warning, info or debug (error is the same as warning)",
			},
			&cli.IntFlag{
				Name:  "active-fat",
				Usage: "FAT copy `N` (0 or 1) used for FAT lookups",
			},
			&cli.IntFlag{
				Name:  "active-bitmap",
				Usage: "allocation bitmap `N` (0 or 1) used for bitmap lookups",
			},
			&cli.BoolFlag{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "print the break patterns and exit",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "text",
				Usage: "`FORMAT` of --list: text or csv",
			},
		},
		// Exit codes are decided by main so the app can be run from tests.
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(ctx *cli.Context) error {
			return run(ctx, fs)
		},
	}
}

func run(ctx *cli.Context, fs afero.Fs) error {
	cfg, err := config.Load(fs, ctx.String("profile"))
	if err != nil {
		return err
	}
	if ctx.IsSet("verbosity") {
		cfg.Verbosity, err = config.ParseLevel(ctx.String("verbosity"))
		if err != nil {
			return err
		}
	}
	if ctx.IsSet("active-fat") {
		activeFAT := ctx.Int("active-fat")
		cfg.ActiveFAT = &activeFAT
	}
	if ctx.IsSet("active-bitmap") {
		activeBitmap := ctx.Int("active-bitmap")
		cfg.ActiveBitmap = &activeBitmap
	}
	setUpLogging(cfg.Verbosity)

	catalog := breaker.NewCatalog()
	if ctx.Bool("list") {
		return listPatterns(ctx.App.Writer, catalog, ctx.String("format"))
	}

	enableAll := ctx.Bool("all") || cfg.All
	if ctx.NArg() < 1 || (ctx.NArg() < 2 && !enableAll && len(cfg.Patterns) == 0) {
		cli.ShowAppHelp(ctx)
		return fmt.Errorf("expected IMAGE_PATH and PATTERN_LIST, or IMAGE_PATH and --all")
	}

	if enableAll {
		catalog.EnableAll()
	}
	for _, choice := range cfg.Patterns {
		selectPattern(catalog, choice)
	}
	for _, choice := range parsePatternList(ctx.Args().Get(1)) {
		selectPattern(catalog, choice)
	}

	imagePath := ctx.Args().Get(0)
	vol, err := volume.FillSuper(fs, imagePath)
	if err != nil {
		return fmt.Errorf("can't mount %s: %w", imagePath, err)
	}
	selectCopies(vol, cfg)

	applied, runErr := catalog.Run(vol)
	for _, index := range applied {
		fmt.Fprintf(ctx.App.Writer, "Break: %s\n", catalog.Patterns()[index].Name())
	}

	if err := vol.PutSuper(); err != nil {
		return fmt.Errorf("writing back %s: %w", imagePath, err)
	}
	return runErr
}

// selectCopies switches the active FAT and bitmap to the ones configured.
// Copies that weren't configured stay as the volume flags selected them.
func selectCopies(vol *volume.Volume, cfg *config.Config) {
	if cfg.ActiveFAT != nil {
		vol.UpdateActiveFAT(*cfg.ActiveFAT)
	}
	if cfg.ActiveBitmap != nil {
		vol.UpdateActiveBitmap(*cfg.ActiveBitmap)
	}
}

// setUpLogging points glog at stderr with a verbosity matching `level`.
func setUpLogging(level config.Level) {
	if !flag.Parsed() {
		flag.CommandLine.Parse([]string{})
	}
	flag.Set("logtostderr", "true")
	flag.Set("v", strconv.Itoa(level.GlogVerbosity()))
}

// selectPattern enables a pattern and sets its variant. Bad selections are
// skipped with a warning.
func selectPattern(catalog *breaker.Catalog, choice config.PatternChoice) {
	if err := catalog.SetVariant(choice.Index, choice.Variant); err != nil {
		glog.Warningf("skipping pattern %d: %s", choice.Index, err)
		return
	}
	if err := catalog.Enable(choice.Index); err != nil {
		glog.Warningf("skipping pattern %d: %s", choice.Index, err)
	}
}

// parsePatternList splits a list like "0,4:1,8" into pattern choices. Tokens
// that aren't numbers are skipped with a warning.
func parsePatternList(list string) []config.PatternChoice {
	var choices []config.PatternChoice

	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		indexText, variantText, hasVariant := strings.Cut(token, ":")
		index, err := strconv.ParseUint(indexText, 10, 31)
		if err != nil {
			glog.Warningf("invalid pattern %q, skipped", token)
			continue
		}

		choice := config.PatternChoice{Index: int(index)}
		if hasVariant {
			variant, err := strconv.ParseUint(variantText, 10, 31)
			if err != nil {
				glog.Warningf("invalid variant in pattern %q, skipped", token)
				continue
			}
			choice.Variant = int(variant)
		}
		choices = append(choices, choice)
	}
	return choices
}

type patternRow struct {
	Index    int    `csv:"index"`
	Name     string `csv:"name"`
	Variants int    `csv:"variants"`
}

func listPatterns(w io.Writer, catalog *breaker.Catalog, format string) error {
	var rows []*patternRow
	for i, pattern := range catalog.Patterns() {
		rows = append(rows, &patternRow{
			Index:    i,
			Name:     pattern.Name(),
			Variants: pattern.Kind.Variants(),
		})
	}

	switch format {
	case "csv":
		return gocsv.Marshal(rows, w)
	case "text":
		for _, row := range rows {
			fmt.Fprintf(w, "%2d  %-36s  %d variant(s)\n", row.Index, row.Name, row.Variants)
		}
		return nil
	default:
		return fmt.Errorf("unknown list format %q, expected text or csv", format)
	}
}
