package weather

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSVFile serves forecasts from a local CSV file, one file per run. Useful
// for offline backtesting and for tests. Expected header:
//
//	time,ghi,dni,dhi,temp_air,wind_speed[,cloud_cover]
//
// Timestamps must be RFC 3339 with an explicit offset; dni/dhi cells may be
// empty when only GHI was measured. A single file feeds every requested
// location, which matches the single-site backtest workflow this exists for.
type CSVFile struct {
	Path string
}

func (c *CSVFile) Forecast(ctx context.Context, locations []Location, day time.Time, step time.Duration) (map[string]Series, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening weather csv: %w", err)
	}
	defer f.Close()

	series, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path, err)
	}

	results := make(map[string]Series, len(locations))
	for _, loc := range locations {
		results[loc.ID] = series
	}
	return results, nil
}

// ParseCSV reads one weather series from r. Exported separately so callers
// can parse from buffers or HTTP bodies without touching the filesystem.
func ParseCSV(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Series{}, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"time", "ghi", "temp_air", "wind_speed"} {
		if _, ok := cols[required]; !ok {
			return Series{}, fmt.Errorf("csv header missing column %q", required)
		}
	}

	var s Series
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("reading csv: %w", err)
		}
		line++

		ts, err := parseCSVTime(record[cols["time"]])
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		ghi, err := parseCSVFloat(record[cols["ghi"]], 0)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: ghi: %w", line, err)
		}
		temp, err := parseCSVFloat(record[cols["temp_air"]], 0)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: temp_air: %w", line, err)
		}
		wind, err := parseCSVFloat(record[cols["wind_speed"]], 0)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: wind_speed: %w", line, err)
		}

		s.Times = append(s.Times, ts)
		s.GHI = append(s.GHI, ghi)
		s.TempAirC = append(s.TempAirC, temp)
		s.WindMS = append(s.WindMS, wind)
		s.DNI = append(s.DNI, optionalCSVFloat(record, cols, "dni"))
		s.DHI = append(s.DHI, optionalCSVFloat(record, cols, "dhi"))
		if idx, ok := cols["cloud_cover"]; ok && idx < len(record) {
			v, err := parseCSVFloat(record[idx], 0)
			if err != nil {
				return Series{}, fmt.Errorf("line %d: cloud_cover: %w", line, err)
			}
			s.CloudCover = append(s.CloudCover, v)
		}
	}

	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

// parseCSVTime accepts RFC 3339 and rejects naive wall-clock strings with a
// typed error so callers can tell bad data from a bad file.
func parseCSVTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if _, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNaiveTimestamp, raw)
	}
	if _, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNaiveTimestamp, raw)
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func parseCSVFloat(raw string, fallback float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", raw)
	}
	return v, nil
}

// optionalCSVFloat returns NaN for absent columns or empty cells, which
// downstream decomposition treats as "fill me in".
func optionalCSVFloat(record []string, cols map[string]int, name string) float64 {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return math.NaN()
	}
	raw := strings.TrimSpace(record[idx])
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
