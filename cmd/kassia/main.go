// Command kassia drives the offline image-customization pipeline
// (spec.md §6's CLI surface): select a device, resolve its configuration,
// mount its source WIM, integrate updates and drivers, commit, export, and
// clean up.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/etj-sad/kassia/internal/config"
	"github.com/etj-sad/kassia/internal/deviceselect"
	"github.com/etj-sad/kassia/internal/kasslog"
	"github.com/etj-sad/kassia/internal/orchestrator"
	"github.com/etj-sad/kassia/internal/servicer"
	"github.com/etj-sad/kassia/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("kassia", flag.ContinueOnError)
	device := fs.String("device", "", "device profile file name; omit to select interactively")
	osID := fs.Int("os-id", 0, "target operating system id (required)")
	noCleanup := fs.Bool("no-cleanup", false, "leave temp files in place after the run")
	skipDrivers := fs.Bool("skip-drivers", false, "skip the Driver Integration stage")
	skipUpdates := fs.Bool("skip-updates", false, "skip the Update Integration stage")
	dryRun := fs.Bool("dry-run", false, "log planned driver/update operations without executing them")
	root := fs.String("root", ".", "engine root directory")
	showVersion := fs.Bool("version", false, "print the engine version and exit")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *showVersion {
		fmt.Println("kassia", version.Formatted())
		return 0
	}
	if *osID == 0 {
		fmt.Fprintln(os.Stderr, "kassia: --os-id is required")
		return 1
	}

	logPath, err := kasslog.Init(*root, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "kassia: could not initialize logging:", err)
		return 1
	}
	defer kasslog.Close()
	kasslog.Info("kassia %s, logging to %s", version.Formatted(), logPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	resolver := config.NewResolver(*root)
	svc := servicer.New()
	prompter := deviceselect.NewStdinPrompter()

	o := orchestrator.New(orchestrator.Options{
		Root:        *root,
		Device:      *device,
		OSID:        *osID,
		NoCleanup:   *noCleanup,
		SkipDrivers: *skipDrivers,
		SkipUpdates: *skipUpdates,
		DryRun:      *dryRun,
	}, resolver, svc, prompter)

	bold := color.New(color.Bold)
	o.Observer = func(e orchestrator.ProgressEvent) {
		bold.Printf("[%d/%d] %s\n", e.Step, e.Total, e.Stage)
	}

	start := time.Now()
	summary, err := o.Run(ctx)
	if err != nil {
		kasslog.Error("pipeline failed: %s", err)
		color.Red("build failed: %s", err)
		return 1
	}

	printSummary(*summary, time.Since(start))
	return 0
}

func printSummary(s orchestrator.Summary, elapsed time.Duration) {
	color.Green("build complete: device=%s os=%d output=%s (%s) duration=%s",
		s.DeviceID, s.OSID, s.OutputPath, outputSize(s.OutputPath), elapsed.Round(time.Second))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Engine", "Total", "Processed", "Failed", "Skipped"})
	table.Append([]string{"Drivers", itoa(s.DriverStats.Total), itoa(s.DriverStats.Processed), itoa(s.DriverStats.Failed), itoa(s.DriverStats.Skipped)})
	table.Append([]string{"Updates", itoa(s.UpdateStats.Total), itoa(s.UpdateStats.Processed), itoa(s.UpdateStats.Failed), itoa(s.UpdateStats.Skipped)})
	table.Render()

	for _, family := range s.MissingFamilies {
		color.Yellow("WARNING: no installed driver satisfies required family %q", family)
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func outputSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "size unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}
