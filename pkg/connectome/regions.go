// Package connectome builds weighted functional connectivity graphs
// from parcellated BOLD time series, with optional motion scrubbing,
// and serializes them to interoperable formats.
package connectome

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"boldpipe/internal/models"
)

// Region is one parcellation region: graph node identity plus
// anatomical metadata.
type Region struct {
	// ID is the consecutive integer node id (0-based row index in the
	// connectivity matrix).
	ID int

	// Label is the voxel label of the region in the parcellation
	// volume.
	Label int32

	// Name is the anatomical region name.
	Name string

	// Hemisphere is "left", "right" or "" when the naming convention
	// carries no hemisphere suffix.
	Hemisphere string
}

// HemisphereFromName infers the hemisphere from the "-lh"/"-rh" region
// naming convention.
func HemisphereFromName(name string) string {
	switch {
	case strings.HasSuffix(name, "-lh"):
		return "left"
	case strings.HasSuffix(name, "-rh"):
		return "right"
	}
	return ""
}

// RegionsFromMask derives the region list from the parcellation volume
// alone: one region per distinct positive label, names synthesized from
// the label value.
func RegionsFromMask(parcellation *models.Mask3D) []Region {
	labels := parcellation.DistinctLabels()
	regions := make([]Region, len(labels))
	for i, l := range labels {
		regions[i] = Region{
			ID:    i,
			Label: l,
			Name:  fmt.Sprintf("region%04d", l),
		}
	}
	return regions
}

// LoadRegionTable reads a tab-separated region table (label, name) and
// returns regions ordered by label, with hemispheres inferred from the
// name suffix. Lines starting with '#' are skipped.
func LoadRegionTable(path string) ([]Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("region table %s: %w", path, models.ErrMissingInput)
	}
	defer f.Close()

	var regions []Region
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("region table %s line %d: expected label<TAB>name", path, line)
		}
		label, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("region table %s line %d: parse label %q: %w", path, line, fields[0], err)
		}
		name := strings.TrimSpace(fields[1])
		regions = append(regions, Region{
			Label:      int32(label),
			Name:       name,
			Hemisphere: HemisphereFromName(name),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("region table %s: %w", path, err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("region table %s is empty: %w", path, models.ErrMissingInput)
	}

	for i := 1; i < len(regions); i++ {
		for j := i; j > 0 && regions[j].Label < regions[j-1].Label; j-- {
			regions[j], regions[j-1] = regions[j-1], regions[j]
		}
	}
	for i := range regions {
		regions[i].ID = i
	}
	return regions, nil
}

// MatchRegions cross-checks a region table against the parcellation's
// distinct labels; the counts and label sets must agree exactly.
func MatchRegions(regions []Region, parcellation *models.Mask3D) error {
	labels := parcellation.DistinctLabels()
	if len(labels) != len(regions) {
		return fmt.Errorf("region table has %d regions, parcellation has %d distinct labels: %w",
			len(regions), len(labels), models.ErrShapeMismatch)
	}
	for i, l := range labels {
		if regions[i].Label != l {
			return fmt.Errorf("region table label %d not found at rank %d (parcellation has %d): %w",
				regions[i].Label, i, l, models.ErrShapeMismatch)
		}
	}
	return nil
}
