package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// coordTolerance pairs a response entry back to the requested location.
// ~1.1 km: generous enough for API rounding, tight enough to catch swaps.
const coordTolerance = 0.01

const defaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

var openMeteoVars = []string{
	"shortwave_radiation",
	"direct_normal_irradiance",
	"diffuse_radiation",
	"temperature_2m",
	"wind_speed_10m",
	"cloudcover",
}

// OpenMeteo fetches day-ahead forecasts from the Open-Meteo API.
type OpenMeteo struct {
	BaseURL string
	Client  *http.Client
}

func NewOpenMeteo() *OpenMeteo {
	return &OpenMeteo{
		BaseURL: defaultOpenMeteoURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type openMeteoBlock struct {
	Time         []string  `json:"time"`
	Shortwave    []float64 `json:"shortwave_radiation"`
	DirectNormal []float64 `json:"direct_normal_irradiance"`
	Diffuse      []float64 `json:"diffuse_radiation"`
	Temperature  []float64 `json:"temperature_2m"`
	WindSpeed    []float64 `json:"wind_speed_10m"`
	CloudCover   []float64 `json:"cloudcover"`
}

type openMeteoResponse struct {
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Timezone    string          `json:"timezone"`
	Hourly      *openMeteoBlock `json:"hourly"`
	Minutely15  *openMeteoBlock `json:"minutely_15"`
	HourlyUnits map[string]any  `json:"hourly_units"`
}

func (o *OpenMeteo) buildURL(locations []Location, day time.Time, step time.Duration) string {
	lats := make([]string, len(locations))
	lons := make([]string, len(locations))
	for i, loc := range locations {
		lats[i] = fmt.Sprintf("%g", loc.Lat)
		lons[i] = fmt.Sprintf("%g", loc.Lon)
	}

	q := url.Values{}
	q.Set("latitude", strings.Join(lats, ","))
	q.Set("longitude", strings.Join(lons, ","))
	q.Set("timezone", "auto")
	q.Set("start_date", day.Format("2006-01-02"))
	q.Set("end_date", day.Format("2006-01-02"))
	// Downstream cell temperature assumes m/s.
	q.Set("wind_speed_unit", "ms")
	vars := strings.Join(openMeteoVars, ",")
	if step == 15*time.Minute {
		q.Set("minutely_15", vars)
	} else {
		q.Set("hourly", vars)
	}
	return o.BaseURL + "?" + q.Encode()
}

// Forecast implements Provider. Transient HTTP failures are retried three
// times with linear backoff; a final failure is a fatal input error for the
// whole request.
func (o *OpenMeteo) Forecast(ctx context.Context, locations []Location, day time.Time, step time.Duration) (map[string]Series, error) {
	if step != time.Hour && step != 15*time.Minute {
		return nil, fmt.Errorf("open-meteo supports 1h or 15m steps, got %s", step)
	}

	reqURL := o.buildURL(locations, day, step)

	var body []byte
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		body, lastErr = o.get(ctx, reqURL)
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
		return nil, fmt.Errorf("open-meteo request failed after retries: %w", lastErr)
	}

	var entries []openMeteoResponse
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("decoding open-meteo response: %w", err)
		}
	} else {
		var single openMeteoResponse
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("decoding open-meteo response: %w", err)
		}
		entries = []openMeteoResponse{single}
	}

	results := make(map[string]Series, len(locations))
	unmatched := make(map[int]bool, len(locations))
	for i := range locations {
		unmatched[i] = true
	}

	for _, entry := range entries {
		idx := -1
		for i := range locations {
			if !unmatched[i] {
				continue
			}
			if math.Abs(entry.Latitude-locations[i].Lat) <= coordTolerance &&
				math.Abs(entry.Longitude-locations[i].Lon) <= coordTolerance {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("open-meteo returned unexpected coordinate (%g, %g); no requested location within tolerance",
				entry.Latitude, entry.Longitude)
		}
		delete(unmatched, idx)

		series, err := entry.toSeries()
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", locations[idx].ID, err)
		}
		results[locations[idx].ID] = series
	}

	if len(unmatched) > 0 {
		missing := make([]string, 0, len(unmatched))
		for i := range unmatched {
			missing = append(missing, locations[i].ID)
		}
		return nil, fmt.Errorf("open-meteo response missing %d requested locations: %v", len(missing), missing)
	}
	return results, nil
}

func (o *OpenMeteo) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// toSeries converts one response entry. Open-Meteo returns local wall-clock
// strings when timezone=auto, so the timestamps are localized (not converted)
// into the returned zone; a missing zone is a hard error.
func (r openMeteoResponse) toSeries() (Series, error) {
	block := r.Hourly
	if block == nil {
		block = r.Minutely15
	}
	if block == nil {
		return Series{}, fmt.Errorf("response missing time series block")
	}
	if r.Timezone == "" {
		return Series{}, ErrNaiveTimestamp
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return Series{}, fmt.Errorf("%w: unknown timezone %q", ErrNaiveTimestamp, r.Timezone)
	}

	n := len(block.Time)
	s := Series{
		Times:      make([]time.Time, n),
		GHI:        pickColumn(block.Shortwave, n, 0),
		DNI:        pickColumnNaN(block.DirectNormal, n),
		DHI:        pickColumnNaN(block.Diffuse, n),
		TempAirC:   pickColumn(block.Temperature, n, 0),
		WindMS:     pickColumn(block.WindSpeed, n, 0),
		CloudCover: pickColumn(block.CloudCover, n, 0),
	}
	for i, raw := range block.Time {
		ts, err := time.ParseInLocation("2006-01-02T15:04", raw, loc)
		if err != nil {
			return Series{}, fmt.Errorf("parsing timestamp %q: %w", raw, err)
		}
		s.Times[i] = ts
	}

	// API may return km/h when the caller forgot wind_speed_unit; convert.
	if units, ok := r.HourlyUnits["wind_speed_10m"].(string); ok && units == "km/h" {
		for i := range s.WindMS {
			s.WindMS[i] /= 3.6
		}
	}
	return s, nil
}

func pickColumn(col []float64, n int, fill float64) []float64 {
	if len(col) == n {
		return col
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = fill
	}
	return out
}

func pickColumnNaN(col []float64, n int) []float64 {
	if len(col) == n {
		return col
	}
	return nanSlice(n)
}
