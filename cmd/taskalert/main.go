package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"taskalert/internal/app"
	"taskalert/internal/config"
	"taskalert/internal/player"
	"taskalert/internal/storage"
)

var Version = "dev"

type globalOpts struct {
	configPath string
	dataDir    string
	storage    string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}

	rootCmd := &cobra.Command{
		Use:           "taskalert",
		Short:         "Task list with deadline alerts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "~/.taskalert/config.yml", "Config file (.yml, .yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&g.storage, "storage", "", "Storage backend: file, bolt or memory")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log to stderr")

	rootCmd.AddCommand(nameCmd(g))
	rootCmd.AddCommand(addCmd(g))
	rootCmd.AddCommand(editCmd(g))
	rootCmd.AddCommand(rmCmd(g))
	rootCmd.AddCommand(doneCmd(g))
	rootCmd.AddCommand(listCmd(g))
	rootCmd.AddCommand(statsCmd(g))
	rootCmd.AddCommand(exportCmd(g))
	rootCmd.AddCommand(watchCmd(g))
	rootCmd.AddCommand(resetCmd(g))

	return rootCmd
}

func (g *globalOpts) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if g.storage != "" {
		cfg.Storage = g.storage
	}
	return cfg, nil
}

func (g *globalOpts) logger(cmd *cobra.Command) *log.Logger {
	if !g.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "taskalert: ", log.LstdFlags)
}

// openApp builds the application for a one-shot command. The caller closes it.
func (g *globalOpts) openApp(cmd *cobra.Command, configure func(*config.Config, *app.Options) error) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage != storage.BackendMemory {
		if err := os.MkdirAll(cfg.DataPath(), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	opts := app.Options{Config: cfg, Logger: g.logger(cmd)}
	if configure != nil {
		if err := configure(cfg, &opts); err != nil {
			return nil, err
		}
	}
	return app.New(opts)
}

func nameCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "name [name]",
		Short: "Show or set your display name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				greet(out, a.Player)
				return nil
			}
			if err := a.Player.SetName(args[0]); err != nil {
				return err
			}
			name, _ := a.Player.Name()
			fmt.Fprintln(out, player.Greeting(name))
			return nil
		},
	}
}

func greet(out io.Writer, p *player.Repo) {
	if name, ok := p.Name(); ok {
		fmt.Fprintln(out, player.Greeting(name))
		return
	}
	fmt.Fprintln(out, "Welcome! Tell me your name with: taskalert name <your name>")
}
