package niftiio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"boldpipe/internal/models"
)

// LoadMotionTable reads a whitespace-delimited motion-parameter table
// (one row per frame, one column per rigid-motion degree of freedom).
// Blank lines are skipped; all rows must have the same column count.
func LoadMotionTable(path string) (*models.MotionParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("motion table %s: %w", path, models.ErrMissingInput)
	}
	defer f.Close()

	var rows [][]float64
	cols := 0

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if cols == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, fmt.Errorf("motion table %s line %d: %d columns, expected %d: %w",
				path, line, len(fields), cols, models.ErrShapeMismatch)
		}

		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("motion table %s line %d: parse %q: %w", path, line, field, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("motion table %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("motion table %s is empty: %w", path, models.ErrMissingInput)
	}

	mp := models.NewMotionParams(len(rows), cols)
	for r, row := range rows {
		copy(mp.Row(r), row)
	}
	return mp, nil
}

// SaveMotionTable writes a motion-parameter table in the same
// whitespace-delimited layout motion-correction tools emit.
func SaveMotionTable(path string, mp *models.MotionParams) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write motion table %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for r := 0; r < mp.Rows; r++ {
		row := mp.Row(r)
		for c, v := range row {
			if c > 0 {
				if _, err := w.WriteString("  "); err != nil {
					return err
				}
			}
			if _, err := w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
				return err
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}
