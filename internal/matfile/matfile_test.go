package matfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }

func TestEncodeScalarLayout(t *testing.T) {
	var f File
	f.Set("x", 2.5)

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf, false))
	b := buf.Bytes()
	require.Len(t, b, headerSize+72)

	assert.Equal(t, "MATLAB 5.0 MAT-file", string(b[:19]))
	assert.Equal(t, uint16(0x0100), binary.LittleEndian.Uint16(b[124:]))
	assert.Equal(t, "IM", string(b[126:128]))

	e := b[headerSize:]
	assert.Equal(t, uint32(miMATRIX), u32(e, 0))
	assert.Equal(t, uint32(64), u32(e, 4))
	// array flags
	assert.Equal(t, uint32(miUINT32), u32(e, 8))
	assert.Equal(t, uint32(8), u32(e, 12))
	assert.Equal(t, uint32(mxDOUBLE), u32(e, 16))
	// dimensions 1x1
	assert.Equal(t, uint32(miINT32), u32(e, 24))
	assert.Equal(t, uint32(1), u32(e, 32))
	assert.Equal(t, uint32(1), u32(e, 36))
	// name
	assert.Equal(t, uint32(miINT8), u32(e, 40))
	assert.Equal(t, uint32(1), u32(e, 44))
	assert.Equal(t, byte('x'), e[48])
	// real part
	assert.Equal(t, uint32(miDOUBLE), u32(e, 56))
	assert.Equal(t, 2.5, math.Float64frombits(binary.LittleEndian.Uint64(e[64:])))
}

func TestMatrixIsColumnMajor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMatrix(&buf, "M", [][]float64{{1, 2, 3}, {4, 5, 6}}))
	b := buf.Bytes()

	// dims at 32, data after the 8 byte name element
	assert.Equal(t, uint32(2), u32(b, 32))
	assert.Equal(t, uint32(3), u32(b, 36))
	data := b[64:]
	var got []float64
	for i := range 6 {
		got = append(got, math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:])))
	}
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, got)
}

func TestCompressedRoundTrip(t *testing.T) {
	var f File
	f.Set("name", "covers80")
	f.Set("Scores", [][]float64{{0, 1}, {1, 0}})

	var plain, packed bytes.Buffer
	require.NoError(t, f.Encode(&plain, false))
	require.NoError(t, f.Encode(&packed, true))

	// inflating every compressed element gives back the plain elements
	var inflated bytes.Buffer
	p := packed.Bytes()[headerSize:]
	for len(p) > 0 {
		require.Equal(t, uint32(miCOMPRESSED), u32(p, 0))
		n := int(u32(p, 4))
		zr, err := zlib.NewReader(bytes.NewReader(p[8 : 8+n]))
		require.NoError(t, err)
		_, err = io.Copy(&inflated, zr)
		require.NoError(t, err)
		p = p[8+n:]
	}
	assert.Equal(t, plain.Bytes()[headerSize:], inflated.Bytes())
}

func TestSetReplaces(t *testing.T) {
	var f File
	f.Set("a", 1.0)
	f.Set("b", 2.0)
	f.Set("a", 3.0)
	assert.Equal(t, []string{"a", "b"}, f.Names())
	v, ok := f.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	_, ok = f.Get("c")
	assert.False(t, ok)
}

func TestStructAndCells(t *testing.T) {
	s := StructFromMap(map[string]any{"Kappa": 0.1, "CSMType": "Euclidean"})
	require.Len(t, s, 2)
	assert.Equal(t, "CSMType", s[0].Name)

	var buf bytes.Buffer
	require.NoError(t, writeMatrix(&buf, "Params", s))
	b := buf.Bytes()
	assert.Equal(t, uint32(mxSTRUCT), u32(b, 16))
	// field name length is a small element after the 6 byte name padded to 8
	assert.Equal(t, []byte{miINT32, 0, 4, 0, fieldNameBytes, 0, 0, 0}, b[56:64])
	assert.Equal(t, uint32(miINT8), u32(b, 64))
	assert.Equal(t, uint32(2*fieldNameBytes), u32(b, 68))
	assert.Equal(t, "CSMType", string(b[72:79]))
	assert.Equal(t, "Kappa", string(b[72+fieldNameBytes:72+fieldNameBytes+5]))

	buf.Reset()
	require.NoError(t, writeMatrix(&buf, "files", []string{"a.ogg", "b.ogg"}))
	assert.Equal(t, uint32(mxCELL), u32(buf.Bytes(), 16))

	long := Struct{{Name: "ThisFieldNameIsFarTooLongForMatlab", Value: 1.0}}
	assert.Error(t, writeMatrix(&buf, "p", long))
}

func TestUnsupportedAndRagged(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, writeMatrix(&buf, "c", complex(1, 2)), ErrUnsupported)
	assert.Error(t, writeMatrix(&buf, "r", [][]float64{{1, 2}, {3}}))
	assert.Error(t, writeMatrix(&buf, "r3", [][][]float64{{{1}, {2, 3}}}))
}

func TestSave(t *testing.T) {
	var f File
	f.Set("BestTempos", [][][]float64{{{0, 1}, {2, 2}}})
	path := filepath.Join(t.TempDir(), "Results.mat")
	require.NoError(t, f.Save(path, true))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Greater(t, len(b), headerSize)
	assert.Equal(t, "IM", string(b[126:128]))
}
