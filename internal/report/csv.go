// Package report writes run results as CSV series and PNG plots.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// FitnessHeader is the header row of a fitness series file.
var FitnessHeader = []string{"generation", "fitness"}

// WriteCSV writes one generation,fitness row per entry of curve. Generations
// are numbered from 1.
func WriteCSV(w io.Writer, curve []float64) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(FitnessHeader); err != nil {
		return err
	}
	for i, v := range curve {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(v, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes curve to path, creating parent directories.
func SaveCSV(path string, curve []float64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, curve); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV reads a series written by WriteCSV. Rows must be in generation
// order starting at 1.
func ReadCSV(r io.Reader) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(FitnessHeader)

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("fitness series is empty")
		}
		return nil, err
	}
	if header[0] != FitnessHeader[0] || header[1] != FitnessHeader[1] {
		return nil, fmt.Errorf("unexpected fitness series header %v", header)
	}

	var curve []float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		g, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid generation %q: %w", record[0], err)
		}
		if g != len(curve)+1 {
			return nil, fmt.Errorf("generation %d out of order, expected %d", g, len(curve)+1)
		}
		v, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fitness %q: %w", record[1], err)
		}
		curve = append(curve, v)
	}
	return curve, nil
}
