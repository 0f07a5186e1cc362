package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fyne.io/fyne/v2/app"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/category"
	"github.com/olivier-w/fmap/internal/config"
	"github.com/olivier-w/fmap/internal/downloader"
	"github.com/olivier-w/fmap/internal/gui"
	"github.com/olivier-w/fmap/internal/logging"
	"github.com/olivier-w/fmap/internal/ui"
)

// Version is set at build time via -ldflags
var Version = "dev"

const appID = "io.github.olivier-w.fmap"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  fmap [flags]              browse and play genres in the terminal
  fmap [flags] grab <term>  download every search result for term
  fmap [flags] grab <url>   download one track page
  fmap [flags] list <name>  print a category (favourites, hates, endeds,
                            skipped, failed, grabbed)

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath  string
		showGUI     bool
		debug       bool
		showVersion bool
		refresh     bool
	)
	flag.StringVar(&configPath, "config", "", "config file (default ~/.config/fmap/config.yaml)")
	flag.BoolVar(&showGUI, "gui", false, "open the desktop window instead of the terminal UI")
	flag.BoolVar(&debug, "debug", false, "log to stderr at debug level")
	flag.BoolVar(&refresh, "refresh", false, "drop cached genres and track pages before starting")
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("fmap %s\n", Version)
		return
	}

	args := flag.Args()
	var err error
	switch {
	case len(args) == 0:
		err = run(configPath, debug, showGUI, refresh)
	case args[0] == "grab" && len(args) > 1:
		err = grab(configPath, debug, strings.Join(args[1:], " "))
	case args[0] == "list" && len(args) == 2:
		err = list(configPath, args[1])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(configPath string, console bool) (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	closer, err := logging.Setup(cfg.Logging.File, cfg.Logging.Level, console)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	return cfg, func() { _ = closer.Close() }, nil
}

func run(configPath string, debug, showGUI, refresh bool) error {
	// The TUI owns the terminal, so debug output only goes to stderr for the GUI.
	cfg, done, err := setup(configPath, debug && showGUI)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if refresh {
		a.catalog.InvalidateAll()
		log.Info().Msg("catalog cache dropped")
	}
	a.openPlayback()

	log.Info().Str("backend", cfg.Playback.Backend).Bool("gui", showGUI).Msg("starting")

	if showGUI {
		w := gui.New(ctx, app.NewWithID(appID), a.controller, a.loop, a.library)
		w.ShowAndRun()
		return nil
	}

	open := func(ctx context.Context, status func(string)) (ui.Model, error) {
		return buildPlaybackModel(ctx, a, status)
	}
	program := tea.NewProgram(newStartupModel(ctx, open), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func grab(configPath string, debug bool, target string) error {
	isURL := downloader.IsURL(target)
	// Single URLs print plain lines, so they can share stderr with the log.
	cfg, done, err := setup(configPath, debug && isURL)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.harvester()
	if err != nil {
		return err
	}

	if isURL {
		line, err := h.Grab(ctx, target)
		if err != nil {
			return err
		}
		fmt.Println(line)
		return nil
	}

	results := a.client.Search(target)
	program := tea.NewProgram(ui.NewHarvest(ctx, target, h, results), tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return err
	}
	hm, ok := finalModel.(ui.HarvestModel)
	if !ok {
		return fmt.Errorf("unexpected model type from grab")
	}
	res := hm.Result()
	if res.Report.Summary != "" {
		fmt.Println(res.Report.Summary)
	}
	fmt.Printf("downloaded %d, skipped %d, failed %d\n", res.Report.Downloaded, res.Report.Skipped, res.Report.Failed)
	return res.Err
}

func list(configPath, name string) error {
	n, err := category.ParseName(name)
	if err != nil {
		return err
	}
	cfg, done, err := setup(configPath, false)
	if err != nil {
		return err
	}
	defer done()

	items, err := category.NewOS(cfg.Paths.DataDir).Items(n)
	if err != nil {
		return err
	}
	for _, id := range items {
		fmt.Println(id)
	}
	return nil
}
