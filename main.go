package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/TFMV/echoes/client"
	"github.com/TFMV/echoes/config"
	"github.com/TFMV/echoes/ingest"
	"github.com/TFMV/echoes/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version = "0.2.0"

	success = color.New(color.FgHiGreen, color.Bold)
	subtle  = color.New(color.FgHiBlack)
	accent  = color.New(color.FgCyan)
	warn    = color.New(color.FgYellow)
)

// rootOptions are the flags shared by every command
type rootOptions struct {
	configPath string
	debug      bool
	width      float64
	height     float64
	layout     string
	palette    string
	offline    bool
	strict     bool
	apiURL     string
	file       string
}

func main() {
	// Create a context that can be canceled on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "echoes",
		Short: "Echoes - how concepts drift through time",
		Long: `Echoes shows how a concept's associations change over time. Each concept is a
timeline of graph snapshots laid out by a force-directed simulation; moving
through time keeps shared nodes in place so the drift stays visible.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Set up logging
			if opts.debug {
				log.SetFlags(log.LstdFlags | log.Lshortfile | log.Lmicroseconds)
				log.Println("Debug mode enabled")
			} else {
				log.SetFlags(log.LstdFlags)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file (echoes.yaml or echoes.toml)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.Float64Var(&opts.width, "width", 0, "Width of the canvas in pixels")
	flags.Float64Var(&opts.height, "height", 0, "Height of the canvas in pixels")
	flags.StringVar(&opts.layout, "layout", "", "Layout algorithm: force or surreal")
	flags.StringVar(&opts.palette, "palette", "", "Color palette: default or surreal")
	flags.BoolVar(&opts.offline, "offline", false, "Use the bundled datasets only")
	flags.BoolVar(&opts.strict, "strict", false, "Fail instead of falling back to offline data")
	flags.StringVar(&opts.apiURL, "api-url", "", "Backend URL (defaults to $ECHOES_API_URL or "+client.DefaultBaseURL+")")
	flags.StringVar(&opts.file, "file", "", "Load the concept from a JSON, CSV or log file")

	rootCmd.AddCommand(newRenderCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newTUICommand(opts))
	rootCmd.AddCommand(newKeysCommand(opts))
	rootCmd.AddCommand(newHealthCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	return rootCmd
}

// loadConfig reads the config file and applies the flags that were set
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.Render.Width = o.width
	}
	if flags.Changed("height") {
		cfg.Render.Height = o.height
	}
	if flags.Changed("layout") {
		cfg.Physics.Layout = o.layout
	}
	if flags.Changed("palette") {
		cfg.Render.Palette = o.palette
	}
	if flags.Changed("offline") {
		cfg.Data.Offline = o.offline
	}
	if flags.Changed("strict") {
		cfg.Data.Strict = o.strict
	}
	if flags.Changed("api-url") {
		cfg.Data.APIURL = o.apiURL
	}
	if flags.Changed("file") {
		cfg.Data.File = o.file
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newProvider picks where concepts come from
func newProvider(cfg *config.Config) ingest.Provider {
	switch {
	case cfg.Data.File != "":
		return ingest.FileProvider{Path: cfg.Data.File}
	case cfg.Data.Offline:
		return ingest.OfflineProvider{}
	default:
		return ingest.NewBackendProvider(client.NewClient(cfg.Data.APIURL), cfg.Data.TopN, !cfg.Data.Strict)
	}
}

// loadConcept loads the concept named in args, or the configured default
func loadConcept(ctx context.Context, cfg *config.Config, args []string) (*models.Concept, error) {
	name := cfg.Data.Concept
	if len(args) > 0 {
		name = args[0]
	}

	concept, err := newProvider(cfg).Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", name, err)
	}
	if concept.Source == "offline" && !cfg.Data.Offline {
		warn.Fprintf(os.Stderr, "! Using offline data for %s\n", concept.Name)
	}
	return concept, nil
}
