// Package niftiio adapts between NIfTI-1 files on disk and the
// in-memory array types in internal/models. Volumes are rewritten with
// the header of a template image so the affine and voxel-size metadata
// survive every stage unchanged except for the frame count.
package niftiio

import (
	"fmt"
	"math"
	"os"

	"github.com/KyungWonPark/nifti"

	"boldpipe/internal/models"
)

// roundLabel rounds an intensity to the nearest integer label. Label
// volumes can carry small negative values after resampling; rounding
// must stay symmetric around zero so they never alias onto background.
func roundLabel(v float32) int32 {
	return int32(math.Round(float64(v)))
}

// LoadVolume4D reads a 4D functional volume. A 3D file is treated as a
// single-frame volume.
func LoadVolume4D(path string) (*models.Volume4D, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("volume %s: %w", path, models.ErrMissingInput)
	}

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	hdr := img.GetHeader()
	x, y, z, t := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3]), int(hdr.Dim[4])
	if t < 1 {
		t = 1
	}
	if x < 1 || y < 1 || z < 1 {
		return nil, fmt.Errorf("volume %s: degenerate dimensions %dx%dx%d", path, x, y, z)
	}

	vol := models.NewVolume4D(x, y, z, t)
	for zz := 0; zz < z; zz++ {
		for yy := 0; yy < y; yy++ {
			for xx := 0; xx < x; xx++ {
				series := vol.SeriesAt(xx, yy, zz)
				for tt := 0; tt < t; tt++ {
					series[tt] = float64(img.GetAt(uint32(xx), uint32(yy), uint32(zz), uint32(tt)))
				}
			}
		}
	}
	return vol, nil
}

// LoadMask3D reads a 3D label volume (tissue mask or parcellation).
// Intensities are rounded to the nearest integer label.
func LoadMask3D(path string) (*models.Mask3D, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("mask %s: %w", path, models.ErrMissingInput)
	}

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	hdr := img.GetHeader()
	x, y, z := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	if x < 1 || y < 1 || z < 1 {
		return nil, fmt.Errorf("mask %s: degenerate dimensions %dx%dx%d", path, x, y, z)
	}

	mask := models.NewMask3D(x, y, z)
	for zz := 0; zz < z; zz++ {
		for yy := 0; yy < y; yy++ {
			for xx := 0; xx < x; xx++ {
				v := img.GetAt(uint32(xx), uint32(yy), uint32(zz), 0)
				mask.Set(xx, yy, zz, roundLabel(v))
			}
		}
	}
	return mask, nil
}

// SaveVolume4D writes a volume to path, copying spatial metadata from
// the template image's header and updating the frame count.
func SaveVolume4D(path string, vol *models.Volume4D, templatePath string) error {
	if _, err := os.Stat(templatePath); err != nil {
		return fmt.Errorf("template %s: %w", templatePath, models.ErrMissingInput)
	}

	img := nifti.NewImg(vol.X, vol.Y, vol.Z, vol.T)

	var hdr nifti.Nifti1Header
	hdr.LoadHeader(templatePath)
	img.SetNewHeader(hdr)
	img.SetHeaderDim(vol.X, vol.Y, vol.Z, vol.T)

	for zz := 0; zz < vol.Z; zz++ {
		for yy := 0; yy < vol.Y; yy++ {
			for xx := 0; xx < vol.X; xx++ {
				series := vol.SeriesAt(xx, yy, zz)
				for tt := 0; tt < vol.T; tt++ {
					img.SetAt(uint32(xx), uint32(yy), uint32(zz), uint32(tt), float32(series[tt]))
				}
			}
		}
	}

	img.Save(path)
	return nil
}
