package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/TFMV/echoes/client"
	"github.com/TFMV/echoes/config"
	"github.com/TFMV/echoes/ingest"
	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/physics"
	"github.com/TFMV/echoes/render"
	"github.com/TFMV/echoes/server"
	"github.com/TFMV/echoes/tui"
	"github.com/TFMV/echoes/viewer"
	"github.com/spf13/cobra"
)

func newRenderCommand(opts *rootOptions) *cobra.Command {
	var (
		key    int
		steps  int
		seed   int64
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "render [concept]",
		Short: "Simulate a snapshot and write it to a file",
		Long: `Render runs the layout for a number of steps on the snapshot nearest to --key
and writes the result as png, svg, ascii, json or dot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			renderer, err := render.GetRenderer(format)
			if err != nil {
				return err
			}
			concept, err := loadConcept(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}

			layout, err := cfg.Layout()
			if err != nil {
				return err
			}
			vp := models.Viewport{Width: cfg.Render.Width, Height: cfg.Render.Height}
			viewOpts := viewer.Options{
				Layout:    layout,
				Placement: physics.RandomPlacement(seed),
				Style:     cfg.Style(),
				Canvas:    render.NewSurface(vp, cfg.Render.PixelRatio),
				Viewport:  vp,
			}
			if cmd.Flags().Changed("key") {
				viewOpts.InitialKey = &key
			}
			view, err := viewer.New(concept.Timeline, viewOpts)
			if err != nil {
				return err
			}

			if err := view.Reset(); err != nil {
				return err
			}
			for i := 0; i < steps; i++ {
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
				view.Tick()
			}
			log.Printf("Simulated %d steps, energy %.3f", steps, view.Energy())

			options := cfg.OutputOptions(format)
			options.Title = fmt.Sprintf("%s · %d", concept.Name, view.CurrentKey())
			data, err := renderer.Render(view.Frame(), options)
			if err != nil {
				return fmt.Errorf("rendering failed: %w", err)
			}

			if output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if output == "" {
				output = fmt.Sprintf("%s-%d.%s", strings.ToLower(concept.Name), view.CurrentKey(), extension(format))
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			success.Printf("✓ Rendered %s (%d) ", concept.Name, view.CurrentKey())
			subtle.Printf("to %s\n", output)
			return nil
		},
	}

	cmd.Flags().IntVar(&key, "key", 0, "Time key to show (nearest snapshot wins, defaults to the latest)")
	cmd.Flags().IntVar(&steps, "steps", 300, "Simulation steps before rendering")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Seed for the initial placement")
	cmd.Flags().StringVarP(&format, "format", "f", "png", "Output format: png, svg, ascii, json, dot")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, '-' for stdout (defaults to <concept>-<key>.<ext>)")
	return cmd
}

func extension(format string) string {
	if strings.EqualFold(format, "ascii") {
		return "txt"
	}
	return strings.ToLower(format)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live viewer and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Data.Watch = watch
			}

			srv := server.New(&server.Config{
				Port:           cfg.Server.Port,
				FrameInterval:  cfg.FrameInterval(),
				StreamInterval: cfg.StreamInterval(),
				MaxSessions:    cfg.Server.MaxSessions,
				Viewport:       models.Viewport{Width: cfg.Render.Width, Height: cfg.Render.Height},
				PixelRatio:     cfg.Render.PixelRatio,
				Style:          cfg.Style(),
				Export:         cfg.OutputOptions,
				Layout:         cfg.Layout,
				DebugMode:      opts.debug,
			}, newProvider(cfg))

			ctx := cmd.Context()
			if cfg.Data.Watch && cfg.Data.File != "" {
				go func() {
					if err := ingest.Watch(ctx, cfg.Data.File, srv.Replace); err != nil {
						log.Printf("Watcher stopped: %v", err)
					}
				}()
				accent.Printf("Watching %s for changes\n", cfg.Data.File)
			}

			success.Printf("✓ Echoes listening on http://localhost:%d\n", cfg.Server.Port)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload --file when it changes")
	return cmd
}

func newTUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [concept]",
		Short: "Explore a concept in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			concept, err := loadConcept(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}
			layout, err := cfg.Layout()
			if err != nil {
				return err
			}

			// The terminal owns stderr while the program runs
			if !opts.debug {
				log.SetOutput(io.Discard)
			}
			return tui.Run(concept, tui.Options{
				Interval:   cfg.FrameInterval(),
				Layout:     layout,
				Style:      cfg.Style(),
				PixelRatio: cfg.Render.PixelRatio,
				ShowLabels: cfg.Render.ShowLabels,
			})
		},
	}
}

func newKeysCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [concept]",
		Short: "List a concept's time keys, or the bundled concepts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 0 && cfg.Data.File == "" {
				accent.Println("Bundled concepts:")
				for _, name := range ingest.OfflineConcepts() {
					fmt.Printf("  %s\n", name)
				}
				subtle.Println("Any other concept uses the generic offline template.")
				return nil
			}
			concept, err := loadConcept(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}

			accent.Printf("%s ", concept.Name)
			subtle.Printf("%s (%s)\n", concept.TimeRange, concept.Source)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNODES\tLINKS\tPATTERN")
			for _, key := range concept.Timeline.Keys() {
				snapshot, _ := concept.Timeline.Snapshot(key)
				pattern := ""
				if p, ok := concept.Patterns[key]; ok {
					pattern = p.Ancient.Title + " / " + p.Modern.Title
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", key, len(snapshot.Nodes), len(snapshot.Edges), pattern)
			}
			return w.Flush()
		},
	}
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			c := client.NewClient(cfg.Data.APIURL)
			resp, err := c.Health(cmd.Context())
			if err != nil {
				warn.Printf("✗ %s: %v\n", c.BaseURL, err)
				return err
			}
			success.Printf("✓ %s ", c.BaseURL)
			subtle.Printf("(%s)\n", resp.Status)
			return nil
		},
	}
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if path := config.Find(); path != "" && opts.configPath == "" {
				subtle.Fprintf(os.Stderr, "# from %s\n", path)
			}
			return cfg.Encode(os.Stdout, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or toml")
	return cmd
}
