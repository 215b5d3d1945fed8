package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"gasm/internal/model"
)

// loadDataset reads a training set. JSON and YAML files hold "inputs" and
// "targets"; CSV rows carry the inputs followed by targets target columns.
func loadDataset(path string, targets int) (model.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Dataset{}, err
	}

	var ds model.Dataset
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &ds); err != nil {
			return model.Dataset{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ds); err != nil {
			return model.Dataset{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".csv":
		ds, err = readCSVDataset(bytes.NewReader(data), targets)
		if err != nil {
			return model.Dataset{}, fmt.Errorf("read %s: %w", path, err)
		}
	default:
		return model.Dataset{}, fmt.Errorf("unsupported dataset format %q", ext)
	}
	return ds, nil
}

// readCSVDataset splits every record into inputs and the trailing targets
// columns. A first record that does not parse as numbers is a header.
func readCSVDataset(r io.Reader, targets int) (model.Dataset, error) {
	if targets <= 0 {
		return model.Dataset{}, fmt.Errorf("%w: targets must be positive, got %d", model.ErrShape, targets)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var ds model.Dataset
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Dataset{}, err
		}
		row, err := parseRow(record)
		if err != nil {
			if line == 1 {
				continue
			}
			return model.Dataset{}, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) <= targets {
			return model.Dataset{}, fmt.Errorf("%w: line %d has %d columns, need more than %d", model.ErrShape, line, len(row), targets)
		}
		split := len(row) - targets
		ds.Inputs = append(ds.Inputs, row[:split:split])
		ds.Targets = append(ds.Targets, row[split:])
	}
	return ds, nil
}

func parseRow(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		row[i] = v
	}
	return row, nil
}

// parseVector reads a comma separated list of numbers.
func parseVector(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	return parseRow(strings.Split(raw, ","))
}
