// Package handlers exposes the genlab client over HTTP for genlabd.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"genlab"
)

// Generator is the slice of the genlab client the handlers depend on.
type Generator interface {
	Generate(ctx context.Context, req genlab.GenerationRequest) (*genlab.BatchResult, error)
}

// App bundles the handler dependencies.
type App struct {
	Generator Generator
	Logger    zerolog.Logger
}

// NewApp wires the handler container.
func NewApp(gen Generator, logger zerolog.Logger) *App {
	return &App{Generator: gen, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]any{"error": map[string]string{"code": kind, "message": message}})
}
