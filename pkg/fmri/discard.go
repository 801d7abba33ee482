package fmri

import (
	"fmt"

	"boldpipe/internal/models"
)

// DiscardFrames returns a copy of the volume with the first n frames
// dropped. The spatial shape is unchanged; the frame count shrinks by
// exactly n.
func DiscardFrames(vol *models.Volume4D, n int) (*models.Volume4D, error) {
	if n < 0 {
		return nil, fmt.Errorf("discard frames: n must be >= 0, got %d", n)
	}
	if n >= vol.T {
		return nil, fmt.Errorf("discard frames: dropping %d of %d frames leaves nothing", n, vol.T)
	}
	if n == 0 {
		return vol.Clone(), nil
	}

	out := models.NewVolume4D(vol.X, vol.Y, vol.Z, vol.T-n)
	for vi := 0; vi < vol.VoxelCount(); vi++ {
		copy(out.Series(vi), vol.Series(vi)[n:])
	}
	return out, nil
}

// TrimMotionTable drops the first n rows of the motion table so its
// rows align with a frame-discarded volume. Whether to trim is an
// explicit configuration decision; an untrimmed table whose row count
// no longer matches the volume fails later with ErrShapeMismatch.
func TrimMotionTable(mp *models.MotionParams, n int) (*models.MotionParams, error) {
	if n < 0 {
		return nil, fmt.Errorf("trim motion table: n must be >= 0, got %d", n)
	}
	if n >= mp.Rows {
		return nil, fmt.Errorf("trim motion table: dropping %d of %d rows leaves nothing", n, mp.Rows)
	}
	if n == 0 {
		return mp.Clone(), nil
	}

	out := models.NewMotionParams(mp.Rows-n, mp.Cols)
	copy(out.Data, mp.Data[n*mp.Cols:])
	return out, nil
}
