// Package feed loads the read-only inputs of the pipeline: the observation
// series, indicator definitions and the crisis scenario catalog.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/macindex/schema"
)

// Store is an immutable in-memory observation store keyed by indicator.
// It satisfies contract.ObservationSource.
type Store struct {
	series map[string][]schema.Observation
	first  time.Time
	last   time.Time
}

// NewStore builds a store from observations in any order. A later
// observation for the same indicator and date replaces an earlier one.
func NewStore(obs []schema.Observation) *Store {
	byKey := make(map[string]map[time.Time]schema.Observation)
	for _, o := range obs {
		if byKey[o.IndicatorID] == nil {
			byKey[o.IndicatorID] = make(map[time.Time]schema.Observation)
		}
		byKey[o.IndicatorID][o.Date] = o
	}

	s := &Store{series: make(map[string][]schema.Observation, len(byKey))}
	for id, byDate := range byKey {
		series := make([]schema.Observation, 0, len(byDate))
		for _, o := range byDate {
			series = append(series, o)
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		s.series[id] = series

		if s.first.IsZero() || series[0].Date.Before(s.first) {
			s.first = series[0].Date
		}
		if end := series[len(series)-1].Date; end.After(s.last) {
			s.last = end
		}
	}
	return s
}

// AsOf returns the latest observation of an indicator dated on or before t
// and no older than maxAge. A zero maxAge disables the staleness check.
func (s *Store) AsOf(indicatorID string, t time.Time, maxAge time.Duration) (schema.Observation, bool) {
	series := s.series[indicatorID]
	i := sort.Search(len(series), func(i int) bool { return series[i].Date.After(t) })
	if i == 0 {
		return schema.Observation{}, false
	}
	o := series[i-1]
	if maxAge > 0 && t.Sub(o.Date) > maxAge {
		return schema.Observation{}, false
	}
	return o, true
}

// Span returns the first and last observation dates in the store.
func (s *Store) Span() (time.Time, time.Time) {
	return s.first, s.last
}

// Indicators returns the indicator IDs present in the store.
func (s *Store) Indicators() []string {
	ids := make([]string, 0, len(s.series))
	for id := range s.series {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of stored observations.
func (s *Store) Len() int {
	n := 0
	for _, series := range s.series {
		n += len(series)
	}
	return n
}

// LoadObservations reads an observation CSV file.
func LoadObservations(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening observations: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadObservations(f)
}

// ReadObservations parses CSV with the header date,indicator,value and an
// optional tier column. Empty values are skipped as missing; anything else
// that does not parse is an error naming its line.
func ReadObservations(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading observation header: %w", err)
	}
	cols, err := columns(header)
	if err != nil {
		return nil, err
	}

	var obs []schema.Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		o, ok, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok {
			obs = append(obs, o)
		}
	}
	return NewStore(obs), nil
}

type columnIndex struct {
	date, indicator, value, tier int
}

func columns(header []string) (columnIndex, error) {
	idx := columnIndex{date: -1, indicator: -1, value: -1, tier: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date":
			idx.date = i
		case "indicator", "indicator_id":
			idx.indicator = i
		case "value":
			idx.value = i
		case "tier":
			idx.tier = i
		}
	}
	if idx.date < 0 || idx.indicator < 0 || idx.value < 0 {
		return idx, fmt.Errorf("observation header must have date, indicator and value columns, got %v", header)
	}
	return idx, nil
}

func parseRecord(record []string, cols columnIndex) (schema.Observation, bool, error) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	raw := field(cols.value)
	if raw == "" {
		return schema.Observation{}, false, nil
	}
	date, err := time.Parse(time.DateOnly, field(cols.date))
	if err != nil {
		return schema.Observation{}, false, fmt.Errorf("invalid date %q", field(cols.date))
	}
	id := field(cols.indicator)
	if id == "" {
		return schema.Observation{}, false, errors.New("missing indicator")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return schema.Observation{}, false, fmt.Errorf("invalid value %q for %s", raw, id)
	}

	tier := schema.NativeTier
	if t := field(cols.tier); t != "" {
		tier = schema.Tier(strings.ToLower(t))
		if !schema.ValidTiers[tier] {
			return schema.Observation{}, false, fmt.Errorf("unknown tier %q for %s", t, id)
		}
	}
	return schema.Observation{IndicatorID: id, Date: date, Value: value, Tier: tier}, true, nil
}
