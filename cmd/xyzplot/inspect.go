package main

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/AaronLay10/xyzplot/internal/export"
	"github.com/AaronLay10/xyzplot/internal/graph"
	"github.com/AaronLay10/xyzplot/internal/grid"
	"github.com/AaronLay10/xyzplot/internal/manifest"
	"github.com/AaronLay10/xyzplot/internal/storage"
	"github.com/AaronLay10/xyzplot/internal/viewer"
)

var inputsCmd = &cobra.Command{
	Use:   "inputs <prompt.json>",
	Short: "List the settable input references of a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := graph.Load(args[0])
		if err != nil {
			return err
		}
		for _, ref := range prompt.References() {
			fmt.Fprintln(cmd.OutOrStdout(), ref.String())
		}
		return nil
	},
}

var gridFlags struct {
	z     int
	batch int
	out   string
}

// openLocal loads dir as a locally picked folder. Images the folder lacks
// resolve against the configured output root.
func openLocal(dir string) (*viewer.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	session := viewer.NewSession(storage.NewFolderStore(osfs.New(cfg.OutputDir())))
	if err := session.LoadLocalFolder(osfs.New(dir)); err != nil {
		return nil, err
	}
	return session, nil
}

var renderCmd = &cobra.Command{
	Use:   "render <folder>",
	Short: "Print the grid layout of a result folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openLocal(args[0])
		if err != nil {
			return err
		}
		defer session.Close()

		g, err := session.Grid(gridFlags.z, gridFlags.batch)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mode:    %s\n", g.Mode)
		fmt.Fprintf(out, "folder:  %s\n", g.Folder)
		fmt.Fprintf(out, "grid:    %d cols x %d rows\n", g.Cols, g.Rows)
		fmt.Fprintf(out, "axes:    x=%d y=%d z=%d batch=%d\n", g.Info.XCount, g.Info.YCount, g.Info.ZCount, g.Info.BatchCount)
		fmt.Fprintf(out, "missing: %d\n", g.Missing())
		for _, a := range g.Annotations {
			fmt.Fprintf(out, "%s: %s\n", a.Axis, a.Key)
		}

		if g.Mode == grid.ModeFlat {
			files, err := storage.NewFolderStore(osfs.New(args[0])).ListImages("")
			if err != nil {
				return err
			}
			if inf, ok := manifest.InferFromFilenames(files); ok {
				fmt.Fprintf(out, "inferred: x=%d y=%d z=%d batch=%d\n", inf.XCount, inf.YCount, inf.ZCount, inf.BatchSize)
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <folder>",
	Short: "Compose a result folder into <folder>_grid.png",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := openLocal(args[0])
		if err != nil {
			return err
		}
		defer session.Close()

		g, err := session.Grid(gridFlags.z, gridFlags.batch)
		if err != nil {
			return err
		}
		name := g.Folder
		if name == "" {
			name = filepath.Base(filepath.Clean(args[0]))
		}
		target := filepath.Join(gridFlags.out, export.OutputFilename(name))

		fs := osfs.New(gridFlags.out)
		f, err := fs.Create(export.OutputFilename(name))
		if err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		exp := &export.Exporter{Loader: session.Loader()}
		res, err := exp.Export(cmd.Context(), g, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%dx%d, %d missing)\n", target, res.Width, res.Height, res.Missing)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{renderCmd, exportCmd} {
		c.Flags().IntVar(&gridFlags.z, "z", grid.AllZ, "Z slice to show, -1 for all side by side")
		c.Flags().IntVar(&gridFlags.batch, "batch", 0, "Batch image to show per cell")
	}
	exportCmd.Flags().StringVarP(&gridFlags.out, "out", "o", ".", "Directory to write the PNG into")
	rootCmd.AddCommand(inputsCmd, renderCmd, exportCmd)
}
