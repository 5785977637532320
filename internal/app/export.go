package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// Export renders historical data as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if len(opts.Tokens) == 0 {
		opts.Tokens = token.All()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}

	series := splitByToken(samples, opts.Tokens)
	total := 0
	for tok, list := range series {
		total += len(list)
		series[tok] = downsampleSamples(list, opts.MaxPoints)
	}
	if total == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no samples found for export window")
		return nil
	}
	a.Logger.Info().Int("total", total).Int("max_points_per_token", opts.MaxPoints).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, opts.Tokens, series); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, opts.Tokens, series); err != nil {
			return err
		}
	}

	return nil
}

func splitByToken(samples []storage.PriceSample, tokens []token.Token) map[token.Token][]storage.PriceSample {
	out := make(map[token.Token][]storage.PriceSample, len(tokens))
	for _, tok := range tokens {
		out[tok] = nil
	}
	for _, sample := range samples {
		if _, ok := out[sample.Token]; ok {
			out[sample.Token] = append(out[sample.Token], sample)
		}
	}
	return out
}

func downsampleSamples(samples []storage.PriceSample, max int) []storage.PriceSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.PriceSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, tokens []token.Token, series map[token.Token][]storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "token", "symbol", "price_usd"}); err != nil {
		return err
	}

	for _, tok := range tokens {
		for _, sample := range series[tok] {
			record := []string{
				sample.Timestamp.UTC().Format(time.RFC3339),
				sample.Token.String(),
				sample.Token.Symbol(),
				sample.Price.String(),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeSamplesPNG plots the first drawable token on the primary axis and the
// rest on the secondary axis, since their price scales differ widely.
func writeSamplesPNG(path string, tokens []token.Token, series map[token.Token][]storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			ValueFormatter: priceFormatter,
		},
	}

	for _, tok := range tokens {
		samples := series[tok]
		if len(samples) < 2 {
			continue
		}
		x := make([]time.Time, len(samples))
		y := make([]float64, len(samples))
		for j, sample := range samples {
			x[j] = sample.Timestamp
			y[j] = sample.Price.InexactFloat64()
		}

		ts := chart.TimeSeries{
			Name:    fmt.Sprintf("%s (USD)", tok.Symbol()),
			XValues: x,
			YValues: y,
		}
		if len(graph.Series) == 0 {
			graph.YAxis.Name = ts.Name
		} else {
			ts.YAxis = chart.YAxisSecondary
			graph.YAxisSecondary.Name = ts.Name
		}
		graph.Series = append(graph.Series, ts)
	}
	if len(graph.Series) == 0 {
		return errors.New("not enough samples to draw a chart")
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
