package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const defaultPVGISURL = "https://re.jrc.ec.europa.eu/api/v5_3/tmy"

// PVGIS serves a typical meteorological year from the PVGIS TMY service.
// TMY data is climatology, not a forecast: the service returns one "typical"
// year per location, assembled from assorted source years. Timestamps are
// re-stamped to the requested day's year so the engine's day window matches.
type PVGIS struct {
	BaseURL string
	Client  *http.Client
	// CacheDir, when set, stores the raw TMY JSON per location. The service
	// returns the same year regardless of date, so one fetch is enough.
	CacheDir string
}

func NewPVGIS() *PVGIS {
	return &PVGIS{
		BaseURL: defaultPVGISURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// pvgisRow is one tmy_hourly record. The service has used both "time(UTC)"
// and "time" as the timestamp key across versions.
type pvgisRow struct {
	Time    string  `json:"time(UTC)"`
	TimeAlt string  `json:"time"`
	T2m     float64 `json:"T2m"`
	WS10m   float64 `json:"WS10m"`
	GHI     float64 `json:"G(h)"`
	DNI     float64 `json:"Gb(n)"`
	DHI     float64 `json:"Gd(h)"`
}

type pvgisResponse struct {
	Outputs struct {
		TMYHourly []pvgisRow `json:"tmy_hourly"`
	} `json:"outputs"`
}

// Forecast implements Provider. The upstream data is hourly only.
func (p *PVGIS) Forecast(ctx context.Context, locations []Location, day time.Time, step time.Duration) (map[string]Series, error) {
	if step != time.Hour {
		return nil, fmt.Errorf("pvgis tmy only supports a 1h step, got %s", step)
	}

	results := make(map[string]Series, len(locations))
	for _, loc := range locations {
		raw, err := p.fetch(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", loc.ID, err)
		}
		series, err := parsePVGIS(raw, day.Year())
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", loc.ID, err)
		}
		results[loc.ID] = series
	}
	return results, nil
}

func (p *PVGIS) fetch(ctx context.Context, loc Location) ([]byte, error) {
	var cachePath string
	if p.CacheDir != "" {
		if err := os.MkdirAll(p.CacheDir, 0o755); err != nil {
			return nil, err
		}
		cachePath = filepath.Join(p.CacheDir, fmt.Sprintf("pvgis_tmy_%g_%g.json", loc.Lat, loc.Lon))
		if raw, err := os.ReadFile(cachePath); err == nil {
			return raw, nil
		}
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", loc.Lat))
	q.Set("lon", fmt.Sprintf("%g", loc.Lon))
	q.Set("outputformat", "json")
	q.Set("browser", "0")
	reqURL := p.BaseURL + "?" + q.Encode()

	var body []byte
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		body, lastErr = p.get(ctx, reqURL)
		if lastErr == nil {
			break
		}
		if attempt < 3 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("pvgis request failed after retries: %w", lastErr)
	}

	if cachePath != "" {
		if err := os.WriteFile(cachePath, body, 0o644); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (p *PVGIS) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pvgis returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parsePVGIS maps the tmy_hourly block onto a Series. Timestamps are UTC
// "YYYYMMDD:HHMM"; the source year varies per month, so every timestamp is
// re-stamped to the target year, which restores monotonic order.
func parsePVGIS(raw []byte, targetYear int) (Series, error) {
	var resp pvgisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Series{}, fmt.Errorf("decoding pvgis response: %w", err)
	}
	rows := resp.Outputs.TMYHourly
	if len(rows) == 0 {
		return Series{}, fmt.Errorf("pvgis response missing tmy_hourly block")
	}

	n := len(rows)
	s := Series{
		Times:    make([]time.Time, n),
		GHI:      make([]float64, n),
		DNI:      make([]float64, n),
		DHI:      make([]float64, n),
		TempAirC: make([]float64, n),
		WindMS:   make([]float64, n),
	}
	for i, row := range rows {
		value := row.Time
		if value == "" {
			value = row.TimeAlt
		}
		ts, err := time.ParseInLocation("20060102:1504", value, time.UTC)
		if err != nil {
			return Series{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
		}
		s.Times[i] = time.Date(targetYear, ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, time.UTC)
		s.GHI[i] = row.GHI
		s.DNI[i] = row.DNI
		s.DHI[i] = row.DHI
		s.TempAirC[i] = row.T2m
		s.WindMS[i] = row.WS10m
	}
	return s, nil
}
