package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cori/video-analysis-pipeline/internal/ai"
	"github.com/cori/video-analysis-pipeline/internal/config"
	"github.com/cori/video-analysis-pipeline/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	probe := flag.Bool("probe", false, "Also send a short text prompt to the model")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println(errorStyle.Render("Configuration error: ") + err.Error())
		os.Exit(1)
	}

	fmt.Println(titleStyle.Render("Checking Ollama"))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("host %s, model %s", cfg.Ollama.Host, cfg.Ollama.Model)))
	fmt.Println()

	aiCfg := service.AIConfig(cfg)
	client := ai.NewOllamaClient(aiCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		fmt.Println(errorStyle.Render("✗ Ollama unreachable: ") + err.Error())
		os.Exit(1)
	}
	fmt.Println(okStyle.Render("✓ Ollama reachable"))

	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Println(errorStyle.Render("✗ Failed to list models: ") + err.Error())
		os.Exit(1)
	}
	fmt.Println(mutedStyle.Render("  installed: " + strings.Join(models, ", ")))

	ok, err := client.HasModel(ctx)
	if err != nil || !ok {
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ Model %s is not installed", cfg.Ollama.Model)))
		fmt.Println(mutedStyle.Render(fmt.Sprintf("  run: ollama pull %s", cfg.Ollama.Model)))
		os.Exit(1)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("✓ Model %s available", cfg.Ollama.Model)))

	if *probe {
		pctx, pcancel := context.WithTimeout(context.Background(), cfg.Ollama.Timeout())
		defer pcancel()
		start := time.Now()
		reply, err := client.Generate(pctx, "Reply with the single word: ready")
		if err != nil {
			fmt.Println(errorStyle.Render("✗ Generation failed: ") + err.Error())
			os.Exit(1)
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("✓ Model answered in %s: ", time.Since(start).Round(time.Millisecond))) + strings.TrimSpace(reply))
	}
}
