package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"solar_forecast/internal/config"
	"solar_forecast/internal/debug"
	"solar_forecast/internal/engine"
	"solar_forecast/internal/mqtt"
	"solar_forecast/internal/timeseries"
	"solar_forecast/internal/weather"
)

func main() {
	configPath := flag.String("config", "forecast.yaml", "scenario YAML file")
	date := flag.String("date", "", "day to forecast (YYYY-MM-DD, default today)")
	timestep := flag.Int("timestep", 0, "sampling step in minutes (overrides config)")
	label := flag.String("label", "", "timestamp label: start, center or end (overrides config)")
	weatherMode := flag.String("weather", "", "weather source: open-meteo, cloud-scaled, pvgis, composite or csv (overrides config)")
	csvPath := flag.String("csv", "", "weather CSV file for -weather csv")
	pvgisCache := flag.String("pvgis-cache", "", "directory caching PVGIS TMY responses (overrides config)")
	actualKWh := flag.Float64("actual-kwh", -1, "measured production so far today in kWh (negative disables)")
	now := flag.String("now", "", "reconciliation cutoff (RFC3339, default wall clock)")
	debugFile := flag.String("debug-file", "", "write the pipeline audit stream as JSONL")
	outPath := flag.String("out", "", "write the full forecast result as JSON (default stdout)")
	publish := flag.Bool("mqtt", false, "publish the forecast to Home Assistant over MQTT")
	forcePublish := flag.Bool("mqtt-force", false, "publish even when the retained state is newer or unchanged")
	flag.Parse()

	// Broker credentials come from the environment; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}
	scenario, err := cfg.Scenario()
	if err != nil {
		log.Fatalf("Invalid scenario: %v", err)
	}

	opts, err := buildOptions(cfg, *date, *timestep, *label, *actualKWh, *now)
	if err != nil {
		log.Fatal(err)
	}

	provider, err := buildProvider(cfg, *weatherMode, *csvPath, *pvgisCache)
	if err != nil {
		log.Fatal(err)
	}

	var sink debug.Sink = debug.Null{}
	var recorder *debug.Recorder
	if *debugFile != "" {
		f, err := os.Create(*debugFile)
		if err != nil {
			log.Fatalf("Failed to open debug file: %v", err)
		}
		defer f.Close()
		recorder = debug.NewRecorder(debug.NewJSONLWriter(f))
		sink = recorder
	}

	eng := engine.New(provider, sink)
	result, err := eng.Run(context.Background(), scenario, opts)
	if recorder != nil {
		recorder.Close()
	}
	if err != nil {
		log.Fatalf("Forecast failed: %v", err)
	}

	for _, site := range result.Sites {
		if site.Err != nil {
			log.Printf("Site %s failed: %v", site.SiteID, site.Err)
			continue
		}
		log.Printf("Site %s: %.2f kWh, peak %.2f kW", site.SiteID, site.Rollup.EnergyKWh, site.Rollup.PeakKW)
	}
	log.Printf("Total: %.2f kWh on %s", result.TotalEnergyKWh, result.Day.Format("2006-01-02"))

	if err := writeResult(result, *outPath); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}

	if *publish {
		if err := publishResult(result, *forcePublish); err != nil {
			log.Fatalf("MQTT publish failed: %v", err)
		}
	}
}

func buildOptions(cfg *config.Config, date string, timestep int, label string, actualKWh float64, now string) (engine.Options, error) {
	opts := engine.Options{
		Day:           time.Now(),
		Step:          cfg.Run.Timestep(),
		Albedo:        cfg.Run.Albedo,
		DampingWindow: cfg.Run.DampingWindow(),
		Now:           time.Now(),
	}

	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return opts, fmt.Errorf("invalid -date %q: %v", date, err)
		}
		opts.Day = day
	}
	if timestep > 0 {
		opts.Step = time.Duration(timestep) * time.Minute
	}

	labelStr := cfg.Run.Label
	if label != "" {
		labelStr = label
	}
	parsed, err := timeseries.ParseLabel(labelStr)
	if err != nil {
		return opts, err
	}
	opts.Label = parsed

	if now != "" {
		t, err := time.Parse(time.RFC3339, now)
		if err != nil {
			return opts, fmt.Errorf("invalid -now %q: %v", now, err)
		}
		opts.Now = t
	}
	if actualKWh >= 0 {
		opts.ActualKWh = &actualKWh
	}

	if lw := cfg.Run.LoadWindow; lw != nil {
		opts.LoadWindow = &engine.LoadWindowConfig{
			BaseLoadW:   lw.BaseLoadW,
			MinDuration: time.Duration(lw.MinDurationMin) * time.Minute,
			RequiredWh:  lw.RequiredWh,
			Now:         opts.Now,
		}
	}
	return opts, nil
}

func buildProvider(cfg *config.Config, mode, csvPath, pvgisCache string) (weather.Provider, error) {
	if mode == "" {
		mode = cfg.Run.Weather
	}
	if csvPath == "" {
		csvPath = cfg.Run.CSVPath
	}
	if pvgisCache == "" {
		pvgisCache = cfg.Run.PVGISCacheDir
	}

	switch mode {
	case "", "open-meteo":
		return weather.NewOpenMeteo(), nil
	case "cloud-scaled":
		return &weather.CloudScaled{Base: weather.NewOpenMeteo()}, nil
	case "pvgis":
		pv := weather.NewPVGIS()
		pv.CacheDir = pvgisCache
		return pv, nil
	case "composite":
		pv := weather.NewPVGIS()
		pv.CacheDir = pvgisCache
		return &weather.Composite{Primary: weather.NewOpenMeteo(), Secondary: pv}, nil
	case "csv":
		if csvPath == "" {
			return nil, fmt.Errorf("-weather csv requires -csv or run.csv_path")
		}
		return &weather.CSVFile{Path: csvPath}, nil
	}
	return nil, fmt.Errorf("unknown weather source %q (want open-meteo, cloud-scaled, pvgis, composite or csv)", mode)
}

func writeResult(result *engine.Result, path string) error {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(raw))
		return nil
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

func publishResult(result *engine.Result, force bool) error {
	broker := os.Getenv("MQTT_BROKER_URL")
	if broker == "" {
		return fmt.Errorf("MQTT_BROKER_URL not set")
	}
	pub := mqtt.NewPublisher(mqtt.Config{
		BrokerURL: broker,
		Username:  os.Getenv("MQTT_USERNAME"),
		Password:  os.Getenv("MQTT_PASSWORD"),
		BaseTopic: os.Getenv("MQTT_BASE_TOPIC"),
	})
	sent, err := pub.Publish(mqtt.BuildState(result, time.Now()), force)
	if err != nil {
		return err
	}
	if sent {
		log.Printf("Published forecast to MQTT")
	} else {
		log.Printf("Retained forecast is current, nothing published")
	}
	return nil
}
