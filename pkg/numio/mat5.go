package numio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"
	"unicode/utf16"

	"gonum.org/v1/gonum/mat"
)

// MATLAB Level 5 MAT-file constants. The format is little-endian here;
// the "IM" endian indicator in the header tells readers so.
const (
	miINT8   = 1
	miUINT16 = 4
	miINT32  = 5
	miUINT32 = 6
	miDOUBLE = 9
	miMATRIX = 14

	mxCHAR   = 4
	mxDOUBLE = 6
)

// MatVar is one named variable in a MAT-file.
type MatVar struct {
	name string
	rows int
	cols int
	// data is column-major float64 for numeric arrays, nil for char.
	data []float64
	// chars is the row strings for char arrays, nil for numeric.
	chars []string
}

// MatMatrix wraps a dense matrix for WriteMat.
func MatMatrix(name string, m *mat.Dense) MatVar {
	rows, cols := m.Dims()
	data := make([]float64, rows*cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			data[c*rows+r] = m.At(r, c)
		}
	}
	return MatVar{name: name, rows: rows, cols: cols, data: data}
}

// MatVector wraps a 1-D series as a column vector.
func MatVector(name string, v []float64) MatVar {
	data := make([]float64, len(v))
	copy(data, v)
	return MatVar{name: name, rows: len(v), cols: 1, data: data}
}

// MatStrings wraps a list of strings as a char matrix, one string per
// row, space-padded to the longest entry (MATLAB char-array layout).
func MatStrings(name string, rows []string) MatVar {
	width := 0
	for _, s := range rows {
		if n := len(utf16.Encode([]rune(s))); n > width {
			width = n
		}
	}
	return MatVar{name: name, rows: len(rows), cols: width, chars: rows}
}

// WriteMat writes the variables to a MATLAB Level 5 MAT-file.
func WriteMat(path string, vars ...MatVar) error {
	var buf bytes.Buffer

	// 116-byte text header + 8-byte subsystem offset + version + endian.
	desc := fmt.Sprintf("MATLAB 5.0 MAT-file, created by boldpipe on %s", time.Now().UTC().Format(time.RFC3339))
	header := make([]byte, 116)
	for i := range header {
		header[i] = ' '
	}
	copy(header, desc)
	buf.Write(header)
	buf.Write(make([]byte, 8))
	binary.Write(&buf, binary.LittleEndian, uint16(0x0100))
	buf.WriteString("IM")

	for _, v := range vars {
		element, err := encodeMatVar(v)
		if err != nil {
			return fmt.Errorf("mat %s variable %q: %w", path, v.name, err)
		}
		binary.Write(&buf, binary.LittleEndian, uint32(miMATRIX))
		binary.Write(&buf, binary.LittleEndian, uint32(len(element)))
		buf.Write(element)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write mat %s: %w", path, err)
	}
	return nil
}

func encodeMatVar(v MatVar) ([]byte, error) {
	if v.name == "" {
		return nil, fmt.Errorf("unnamed variable")
	}

	var buf bytes.Buffer

	class := uint32(mxDOUBLE)
	if v.chars != nil {
		class = mxCHAR
	}

	// Array flags subelement.
	binary.Write(&buf, binary.LittleEndian, uint32(miUINT32))
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	binary.Write(&buf, binary.LittleEndian, class)
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	// Dimensions subelement.
	binary.Write(&buf, binary.LittleEndian, uint32(miINT32))
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	binary.Write(&buf, binary.LittleEndian, int32(v.rows))
	binary.Write(&buf, binary.LittleEndian, int32(v.cols))

	// Name subelement, padded to an 8-byte boundary.
	binary.Write(&buf, binary.LittleEndian, uint32(miINT8))
	binary.Write(&buf, binary.LittleEndian, uint32(len(v.name)))
	buf.WriteString(v.name)
	pad8(&buf)

	// Data subelement, column-major.
	if v.chars != nil {
		units := encodeCharData(v)
		binary.Write(&buf, binary.LittleEndian, uint32(miUINT16))
		binary.Write(&buf, binary.LittleEndian, uint32(2*len(units)))
		for _, u := range units {
			binary.Write(&buf, binary.LittleEndian, u)
		}
	} else {
		binary.Write(&buf, binary.LittleEndian, uint32(miDOUBLE))
		binary.Write(&buf, binary.LittleEndian, uint32(8*len(v.data)))
		for _, f := range v.data {
			binary.Write(&buf, binary.LittleEndian, f)
		}
	}
	pad8(&buf)

	return buf.Bytes(), nil
}

// encodeCharData lays the row strings out column-major with space
// padding, as MATLAB stores rectangular char arrays.
func encodeCharData(v MatVar) []uint16 {
	grid := make([][]uint16, v.rows)
	for r, s := range v.chars {
		grid[r] = utf16.Encode([]rune(s))
	}
	units := make([]uint16, 0, v.rows*v.cols)
	for c := 0; c < v.cols; c++ {
		for r := 0; r < v.rows; r++ {
			if c < len(grid[r]) {
				units = append(units, grid[r][c])
			} else {
				units = append(units, ' ')
			}
		}
	}
	return units
}

func pad8(buf *bytes.Buffer) {
	for buf.Len()%8 != 0 {
		buf.WriteByte(0)
	}
}
