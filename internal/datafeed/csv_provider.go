package datafeed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

const component = "datafeed"

// CSVColumnMapping defines the column positions of a price series file
type CSVColumnMapping struct {
	TimestampCol int
	PriceCol     int
	MinColumns   int
	DateFormat   string
}

// DefaultCSVFormat matches "timestamp,price" exports
var DefaultCSVFormat = CSVColumnMapping{
	TimestampCol: 0,
	PriceCol:     1,
	MinColumns:   2,
	DateFormat:   "2006-01-02 15:04:05",
}

type observation struct {
	timestamp time.Time
	value     float64
}

// CSVProvider replays historical price series loaded from CSV files, one
// series per symbol. Each tick serves the latest observation at or before
// the requested timestamp; symbols with no observation yet are omitted so
// downstream consumers degrade instead of crashing.
type CSVProvider struct {
	format CSVColumnMapping
	series map[string][]observation

	// static protocol inputs replayed unchanged every tick
	protocol types.ProtocolData
	funding  map[string]float64
}

// NewCSVProvider creates a CSV replay provider with the default format
func NewCSVProvider() *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat)
}

// NewCSVProviderWithFormat creates a CSV replay provider with a custom format
func NewCSVProviderWithFormat(format CSVColumnMapping) *CSVProvider {
	return &CSVProvider{
		format:  format,
		series:  make(map[string][]observation),
		funding: make(map[string]float64),
	}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// SetProtocolData installs the static protocol payload served every tick
func (p *CSVProvider) SetProtocolData(protocol types.ProtocolData) {
	p.protocol = protocol
}

// SetFundingRate installs a constant funding rate for an instrument
func (p *CSVProvider) SetFundingRate(instrument string, rate float64) {
	p.funding[instrument] = rate
}

// LoadSeries loads one symbol's price series from a CSV file. The series
// is sorted by timestamp after loading; malformed rows are skipped.
func (p *CSVProvider) LoadSeries(symbol, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return perrors.Wrap(err, perrors.ErrorCategoryConfig, component, "LoadSeries",
			fmt.Sprintf("cannot open series file for %s", symbol))
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Skip header
	if _, err := reader.Read(); err != nil {
		return perrors.Wrap(err, perrors.ErrorCategoryConfig, component, "LoadSeries",
			fmt.Sprintf("cannot read header of series file for %s", symbol))
	}

	var series []observation
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return perrors.Wrap(err, perrors.ErrorCategoryConfig, component, "LoadSeries",
				fmt.Sprintf("error reading series file for %s", symbol))
		}

		if len(record) < p.format.MinColumns {
			continue
		}

		timestamp, err := time.Parse(p.format.DateFormat, record[p.format.TimestampCol])
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(record[p.format.PriceCol], 64)
		if err != nil {
			continue
		}

		series = append(series, observation{timestamp: timestamp, value: value})
	}

	if len(series) == 0 {
		return perrors.NewConfigError(component, "LoadSeries",
			fmt.Sprintf("series file for %s contains no usable rows", symbol))
	}

	sort.Slice(series, func(i, j int) bool { return series[i].timestamp.Before(series[j].timestamp) })
	p.series[symbol] = series
	return nil
}

// GetData serves the latest observation at or before the timestamp for
// every loaded symbol
func (p *CSVProvider) GetData(ctx context.Context, timestamp time.Time) (types.TickData, error) {
	if err := ctx.Err(); err != nil {
		return types.TickData{}, err
	}

	prices := make(map[string]float64, len(p.series))
	for symbol, series := range p.series {
		if value, ok := latestAtOrBefore(series, timestamp); ok {
			prices[symbol] = value
		}
	}

	funding := make(map[string]float64, len(p.funding))
	for instrument, rate := range p.funding {
		funding[instrument] = rate
	}

	return types.TickData{
		Timestamp: timestamp,
		MarketData: types.MarketData{
			Prices:       prices,
			FundingRates: funding,
		},
		ProtocolData: p.protocol,
	}, nil
}

// latestAtOrBefore binary-searches the sorted series for the last
// observation not after ts
func latestAtOrBefore(series []observation, ts time.Time) (float64, bool) {
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].timestamp.After(ts)
	})
	if idx == 0 {
		return 0, false
	}
	return series[idx-1].value, true
}
