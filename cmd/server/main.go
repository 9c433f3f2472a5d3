package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"solar_forecast/internal/config"
	"solar_forecast/internal/engine"
	"solar_forecast/internal/model"
	"solar_forecast/internal/timeseries"
	"solar_forecast/internal/weather"
	"solar_forecast/internal/ws"
)

func main() {
	configPath := flag.String("config", "forecast.yaml", "scenario YAML file")
	addr := flag.String("addr", ":8080", "listen address")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}
	scenario, err := cfg.Scenario()
	if err != nil {
		log.Fatalf("Invalid scenario: %v", err)
	}
	label, err := timeseries.ParseLabel(cfg.Run.Label)
	if err != nil {
		log.Fatalf("Invalid run label: %v", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Set up WebSocket hub and forecast runner
	hub := ws.NewHub()
	bridge := ws.NewBridge(hub)
	runner := &runner{
		engine:   engine.New(provider, bridge),
		bridge:   bridge,
		scenario: scenario,
		cfg:      cfg,
		label:    label,
	}

	handler := ws.NewHandler(hub, runner.run)

	// Routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws", handler)

	// Serve frontend static files
	if _, err := os.Stat(*frontendDir); err == nil {
		log.Printf("Serving frontend from %s", *frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(*frontendDir)))
	}

	log.Printf("Starting server on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

// runner executes one forecast at a time and streams the audit feed to
// connected clients through the bridge.
type runner struct {
	mu       sync.Mutex
	engine   *engine.Engine
	bridge   *ws.Bridge
	scenario model.Scenario
	cfg      *config.Config
	label    timeseries.Label
}

func (r *runner) run(day time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bridge.RunStarted(day.Format("2006-01-02"))

	opts := engine.Options{
		Day:           day,
		Step:          r.cfg.Run.Timestep(),
		Label:         r.label,
		Albedo:        r.cfg.Run.Albedo,
		DampingWindow: r.cfg.Run.DampingWindow(),
		Now:           time.Now(),
	}
	if lw := r.cfg.Run.LoadWindow; lw != nil {
		opts.LoadWindow = &engine.LoadWindowConfig{
			BaseLoadW:   lw.BaseLoadW,
			MinDuration: time.Duration(lw.MinDurationMin) * time.Minute,
			RequiredWh:  lw.RequiredWh,
			Now:         opts.Now,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := r.engine.Run(ctx, r.scenario, opts)
	if err != nil {
		log.Printf("Forecast run failed: %v", err)
		r.bridge.RunFailed(err)
		return
	}

	log.Printf("Forecast for %s: %.2f kWh total", day.Format("2006-01-02"), result.TotalEnergyKWh)
	r.bridge.RunCompleted(result)
}

func buildProvider(cfg *config.Config) (weather.Provider, error) {
	switch cfg.Run.Weather {
	case "", "open-meteo":
		return weather.NewOpenMeteo(), nil
	case "cloud-scaled":
		return &weather.CloudScaled{Base: weather.NewOpenMeteo()}, nil
	case "pvgis":
		pv := weather.NewPVGIS()
		pv.CacheDir = cfg.Run.PVGISCacheDir
		return pv, nil
	case "composite":
		pv := weather.NewPVGIS()
		pv.CacheDir = cfg.Run.PVGISCacheDir
		return &weather.Composite{Primary: weather.NewOpenMeteo(), Secondary: pv}, nil
	case "csv":
		if cfg.Run.CSVPath == "" {
			return nil, fmt.Errorf("weather csv requires run.csv_path")
		}
		return &weather.CSVFile{Path: cfg.Run.CSVPath}, nil
	}
	return nil, fmt.Errorf("unknown weather source %q (want open-meteo, cloud-scaled, pvgis, composite or csv)", cfg.Run.Weather)
}
