// Command genlab runs one generation batch from the terminal and writes the
// resulting images to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"genlab"
	"genlab/internal/infra"
	"genlab/pkg/datauri"
)

func main() {
	var (
		prompt    = flag.String("prompt", "", "caption to generate from (required)")
		negative  = flag.String("negative", "", "negative prompt")
		width     = flag.Int("width", 1024, "image width")
		height    = flag.Int("height", 1024, "image height")
		count     = flag.Int("count", 1, "number of images to generate")
		seed      = flag.Int64("seed", -1, "base seed, -1 for random")
		model     = flag.String("model", "", "inference model override")
		noEnhance = flag.Bool("no-enhance", false, "disable prompt enhancement")
		outDir    = flag.String("out", ".", "directory to write images into")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if strings.TrimSpace(*prompt) == "" {
		fmt.Fprintln(os.Stderr, "usage: genlab -prompt \"a lighthouse at dusk\" [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	client, err := genlab.New(genlab.Options{
		BaseURL:         cfg.BaseURL,
		Token:           cfg.APIToken,
		SessionCookie:   cfg.SessionCookie,
		ProjectID:       cfg.ProjectID,
		Model:           cfg.Model,
		EnhanceModelID:  cfg.EnhanceModelID,
		MaxPollAttempts: cfg.MaxPollAttempts,
		PollInterval:    cfg.PollInterval,
		RequestTimeout:  cfg.RequestTimeout,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build genlab client")
	}

	enhance := !*noEnhance
	req := genlab.GenerationRequest{
		Prompt:         *prompt,
		NegativePrompt: *negative,
		Width:          *width,
		Height:         *height,
		BatchSize:      *count,
		Seed:           genlab.SeedFromInt(*seed),
		Model:          *model,
		Enhance:        &enhance,
	}

	// Bound the whole batch by its worst-case polling budget plus headroom.
	budget := time.Duration(cfg.MaxPollAttempts)*cfg.PollInterval + 2*time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	result, err := client.Generate(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Msg("generation failed")
	}

	for i, uri := range result.ImageURLs {
		mime, data, err := datauri.Decode(uri)
		if err != nil {
			logger.Fatal().Err(err).Int("index", i).Msg("malformed image payload")
		}
		name := fmt.Sprintf("genlab-%02d%s", i+1, extensionFor(mime))
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("failed to write image")
		}
		logger.Info().Str("path", path).Msg("wrote image")
	}
	logger.Info().
		Int64("seed", result.Seed).
		Str("enhanced_prompt", result.EnhancedPrompt).
		Int("images", len(result.ImageURLs)).
		Msg("batch complete")
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
