package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cori/video-analysis-pipeline/internal/config"
	"github.com/cori/video-analysis-pipeline/internal/pipeline"
	"github.com/cori/video-analysis-pipeline/internal/service"
	"github.com/cori/video-analysis-pipeline/internal/sidecar"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func main() {
	var (
		force      = flag.Bool("force", false, "Re-analyze even if a sidecar exists")
		xmp        = flag.Bool("xmp", false, "Also write an XMP sidecar")
		trim       = flag.Bool("trim", false, "Export a copy without leading and trailing static footage")
		configPath = flag.String("config", "", "Path to YAML config")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: analyze-video [flags] <video>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(flag.Arg(0), *configPath, *force, pipeline.Options{GenerateXMP: *xmp, TrimStatic: *trim}))
}

func run(videoPath, configPath string, force bool, opts pipeline.Options) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Println(errorStyle.Render("Configuration error: ") + err.Error())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stages := pipeline.ObserverFunc(func(e pipeline.StageEvent) {
		line := fmt.Sprintf("  %-18s %s", e.Stage, e.At.Format("15:04:05"))
		if e.Error != "" {
			line += "  " + e.Error
		}
		fmt.Println(mutedStyle.Render(line))
	})

	orchestrator, ollama, err := service.BuildOrchestrator(cfg, stages)
	if err != nil {
		fmt.Println(errorStyle.Render("Setup failed: ") + err.Error())
		return 1
	}

	svc := service.NewService(service.Dependencies{
		Runner: orchestrator,
		Health: ollama,
	}, service.Config{
		Model:         cfg.Ollama.Model,
		HealthTimeout: service.HealthTimeout(cfg),
	})

	fmt.Println(titleStyle.Render("Analyzing " + videoPath))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("model %s at %s", cfg.Ollama.Model, cfg.Ollama.Host)))

	resp, err := svc.Analyze(ctx, service.AnalyzeRequest{Path: videoPath, Force: force, Options: opts})
	if err != nil {
		if errors.Is(err, sidecar.ErrConflict) {
			fmt.Println(warnStyle.Render("Skipped: ") + err.Error())
			return 3
		}
		fmt.Println(errorStyle.Render("Analysis failed: ") + err.Error())
		return 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", okStyle.Render("Analysis complete"))
	fmt.Fprintf(&b, "sidecar    %s\n", resp.Sidecar)
	fmt.Fprintf(&b, "duration   %.1fs\n", resp.DurationSeconds)
	fmt.Fprintf(&b, "tags       %s\n", strings.Join(resp.Tags, ", "))
	fmt.Fprintf(&b, "highlights %d\n", resp.HighlightsCount)
	fmt.Fprintf(&b, "static     %d", resp.StaticSegmentsCount)
	if resp.XMP != "" {
		fmt.Fprintf(&b, "\nxmp        %s", resp.XMP)
	}
	if resp.Trimmed != "" {
		fmt.Fprintf(&b, "\ntrimmed    %s", resp.Trimmed)
	}
	fmt.Println(panelStyle.Render(b.String()))

	for _, w := range resp.Warnings {
		fmt.Println(warnStyle.Render("warning: ") + w)
	}
	return 0
}
