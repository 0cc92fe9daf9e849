package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/xyzplot/internal/axis"
	"github.com/AaronLay10/xyzplot/internal/graph"
	"github.com/AaronLay10/xyzplot/internal/sweep"
)

var sweepFlags struct {
	x, y, z   axis.Spec
	template  string
	workflow  string
	onFailure string
	output    string
}

var sweepCmd = &cobra.Command{
	Use:   "sweep <prompt.json>",
	Short: "Run one X/Y/Z sweep and write its folder and result.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		prompt, err := graph.Load(args[0])
		if err != nil {
			return err
		}

		var workflow []byte
		if sweepFlags.workflow != "" {
			if workflow, err = os.ReadFile(sweepFlags.workflow); err != nil {
				return fmt.Errorf("read workflow: %w", err)
			}
		}

		onFailure := cfg.Sweep.OnFailure
		if sweepFlags.onFailure != "" {
			onFailure = sweepFlags.onFailure
		}
		policy, err := sweep.ParsePolicy(onFailure)
		if err != nil {
			return err
		}

		template := cfg.Output.Template
		if sweepFlags.template != "" {
			template = sweepFlags.template
		}
		outDir := cfg.OutputDir()
		if sweepFlags.output != "" {
			outDir = sweepFlags.output
		}

		closeStore, err := openEventStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		store, err := openOutput(outDir)
		if err != nil {
			return err
		}
		exec, err := buildExecutor(cfg)
		if err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		defer exec.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := sweep.NewRunner(exec, store, policy).Run(ctx, sweep.Request{
			Prompt:   prompt,
			X:        sweepFlags.x,
			Y:        sweepFlags.y,
			Z:        sweepFlags.z,
			Template: template,
			Workflow: workflow,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*sweep.Report
			FailedCells []uint32 `json:"failed"`
		}{report, report.FailedCells()})
	},
}

func init() {
	f := sweepCmd.Flags()
	f.StringVar(&sweepFlags.x.Reference, "x-input", "", `X input reference, "#<node>::<title>::<widget>"`)
	f.StringVar(&sweepFlags.x.Values, "x-values", "", "X values, ';' separated")
	f.StringVar(&sweepFlags.y.Reference, "y-input", "", "Y input reference")
	f.StringVar(&sweepFlags.y.Values, "y-values", "", "Y values")
	f.StringVar(&sweepFlags.z.Reference, "z-input", axis.None, "Z input reference, or none")
	f.StringVar(&sweepFlags.z.Values, "z-values", "", "Z values")
	f.StringVar(&sweepFlags.template, "template", "", "Folder name template (overrides output.template)")
	f.StringVar(&sweepFlags.workflow, "workflow", "", "Workflow JSON saved next to the manifest")
	f.StringVar(&sweepFlags.onFailure, "on-failure", "", "continue or abort (overrides sweep.on_failure)")
	f.StringVarP(&sweepFlags.output, "output", "o", "", "Output root (overrides output.dir)")
	_ = sweepCmd.MarkFlagRequired("x-input")
	_ = sweepCmd.MarkFlagRequired("y-input")
	rootCmd.AddCommand(sweepCmd)
}
