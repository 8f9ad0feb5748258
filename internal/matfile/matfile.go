// Package matfile writes MATLAB Level-5 .mat files: double arrays, char
// arrays, cell arrays of strings and structs, optionally zlib compressed.
package matfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
)

// data element types
const (
	miINT8       = 1
	miUINT16     = 4
	miINT32      = 5
	miUINT32     = 6
	miDOUBLE     = 9
	miMATRIX     = 14
	miCOMPRESSED = 15
)

// array classes
const (
	mxCELL   = 1
	mxSTRUCT = 2
	mxCHAR   = 4
	mxDOUBLE = 6
)

const (
	headerSize     = 128
	fieldNameBytes = 32
)

var byteOrder = binary.LittleEndian

// ErrUnsupported is returned for values the writer cannot encode
var ErrUnsupported = errors.New("matfile: unsupported value type")

// Var is a named variable
type Var struct {
	Name  string
	Value any
}

// Struct is a 1x1 struct with ordered fields
type Struct []Var

// StructFromMap builds a struct with fields sorted by name
func StructFromMap[V any](m map[string]V) Struct {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := make(Struct, 0, len(keys))
	for _, k := range keys {
		s = append(s, Var{Name: k, Value: m[k]})
	}
	return s
}

// File is an ordered set of variables. Setting an existing name replaces
// its value in place.
type File struct {
	vars []Var
}

// Set adds or replaces a variable
func (f *File) Set(name string, value any) {
	for i := range f.vars {
		if f.vars[i].Name == name {
			f.vars[i].Value = value
			return
		}
	}
	f.vars = append(f.vars, Var{Name: name, Value: value})
}

// Get returns a variable's value
func (f *File) Get(name string) (any, bool) {
	for _, v := range f.vars {
		if v.Name == name {
			return v.Value, true
		}
	}
	return nil, false
}

// Names returns the variable names in order
func (f *File) Names() []string {
	names := make([]string, len(f.vars))
	for i, v := range f.vars {
		names[i] = v.Name
	}
	return names
}

// Encode writes the whole file to w
func (f *File) Encode(w io.Writer, compress bool) error {
	if err := writeHeader(w); err != nil {
		return err
	}
	for _, v := range f.vars {
		if err := writeVar(w, v, compress); err != nil {
			return fmt.Errorf("variable %s: %w", v.Name, err)
		}
	}
	return nil
}

// Save writes the file to path, replacing any existing file
func (f *File) Save(path string, compress bool) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".matfile-*")
	if err != nil {
		return fmt.Errorf("failed to create mat file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Encode(tmp, compress); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write mat file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write mat file: %w", err)
	}
	return nil
}

func writeHeader(w io.Writer) error {
	var h [headerSize]byte
	for i := range 116 {
		h[i] = ' '
	}
	text := fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: GO, Created on: %s", time.Now().UTC().Format(time.ANSIC))
	copy(h[:116], text)
	// subsystem data offset stays zero
	byteOrder.PutUint16(h[124:], 0x0100)
	h[126], h[127] = 'I', 'M'
	_, err := w.Write(h[:])
	return err
}

func writeVar(w io.Writer, v Var, compress bool) error {
	var buf bytes.Buffer
	if err := writeMatrix(&buf, v.Name, v.Value); err != nil {
		return err
	}
	if !compress {
		_, err := w.Write(buf.Bytes())
		return err
	}

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := writeTag(w, miCOMPRESSED, z.Len()); err != nil {
		return err
	}
	_, err := w.Write(z.Bytes())
	return err
}

func writeTag(w io.Writer, dataType, nbytes int) error {
	var tag [8]byte
	byteOrder.PutUint32(tag[0:], uint32(dataType))
	byteOrder.PutUint32(tag[4:], uint32(nbytes))
	_, err := w.Write(tag[:])
	return err
}

func pad8(n int) int {
	return (8 - n%8) % 8
}

// writeElement writes a tagged data element padded to 8 bytes
func writeElement(buf *bytes.Buffer, dataType int, data []byte) {
	writeTag(buf, dataType, len(data))
	buf.Write(data)
	buf.Write(make([]byte, pad8(len(data))))
}

// writeSmallElement packs up to 4 bytes of data into the tag itself, with
// the byte count in the upper half of the type word
func writeSmallElement(buf *bytes.Buffer, dataType int, data []byte) {
	var elem [8]byte
	byteOrder.PutUint32(elem[0:], uint32(len(data))<<16|uint32(dataType))
	copy(elem[4:], data)
	buf.Write(elem[:])
}

func int32Bytes(vals ...int) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		byteOrder.PutUint32(b[4*i:], uint32(int32(v)))
	}
	return b
}

func float64Bytes(vals []float64) []byte {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		byteOrder.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

// matrixBody assembles flags, dimensions and name, the common prefix of
// every miMATRIX element
func matrixBody(class int, dims []int, name string) *bytes.Buffer {
	body := &bytes.Buffer{}
	flags := make([]byte, 8)
	byteOrder.PutUint32(flags, uint32(class))
	writeElement(body, miUINT32, flags)
	writeElement(body, miINT32, int32Bytes(dims...))
	writeElement(body, miINT8, []byte(name))
	return body
}

func finishMatrix(buf *bytes.Buffer, body *bytes.Buffer) {
	writeTag(buf, miMATRIX, body.Len())
	buf.Write(body.Bytes())
}

func writeMatrix(buf *bytes.Buffer, name string, value any) error {
	switch v := value.(type) {
	case float64:
		writeDouble(buf, name, []int{1, 1}, []float64{v})
	case int:
		writeDouble(buf, name, []int{1, 1}, []float64{float64(v)})
	case bool:
		x := 0.0
		if v {
			x = 1
		}
		writeDouble(buf, name, []int{1, 1}, []float64{x})
	case []float64:
		writeDouble(buf, name, []int{1, len(v)}, v)
	case []int:
		vals := make([]float64, len(v))
		for i, x := range v {
			vals[i] = float64(x)
		}
		writeDouble(buf, name, []int{1, len(v)}, vals)
	case [][]float64:
		rows, cols, err := matrixShape(v)
		if err != nil {
			return err
		}
		vals := make([]float64, rows*cols)
		for i, row := range v {
			for j, x := range row {
				vals[i+j*rows] = x
			}
		}
		writeDouble(buf, name, []int{rows, cols}, vals)
	case [][][]float64:
		return writeDouble3(buf, name, v)
	case string:
		writeChar(buf, name, v)
	case []string:
		body := matrixBody(mxCELL, []int{1, len(v)}, name)
		for _, s := range v {
			writeChar(body, "", s)
		}
		finishMatrix(buf, body)
	case Struct:
		return writeStruct(buf, name, v)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, value)
	}
	return nil
}

func writeDouble(buf *bytes.Buffer, name string, dims []int, vals []float64) {
	body := matrixBody(mxDOUBLE, dims, name)
	writeElement(body, miDOUBLE, float64Bytes(vals))
	finishMatrix(buf, body)
}

func writeDouble3(buf *bytes.Buffer, name string, v [][][]float64) error {
	rows := len(v)
	cols, depth := 0, 0
	if rows > 0 {
		cols = len(v[0])
		if cols > 0 {
			depth = len(v[0][0])
		}
	}
	vals := make([]float64, rows*cols*depth)
	for i, plane := range v {
		if len(plane) != cols {
			return fmt.Errorf("matfile: ragged 3-d array at row %d", i)
		}
		for j, col := range plane {
			if len(col) != depth {
				return fmt.Errorf("matfile: ragged 3-d array at (%d, %d)", i, j)
			}
			for k, x := range col {
				vals[i+j*rows+k*rows*cols] = x
			}
		}
	}
	writeDouble(buf, name, []int{rows, cols, depth}, vals)
	return nil
}

func matrixShape(v [][]float64) (int, int, error) {
	rows := len(v)
	if rows == 0 {
		return 0, 0, nil
	}
	cols := len(v[0])
	for i, row := range v {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("matfile: ragged matrix, row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	return rows, cols, nil
}

func writeChar(buf *bytes.Buffer, name, s string) {
	units := utf16.Encode([]rune(s))
	body := matrixBody(mxCHAR, []int{1, len(units)}, name)
	data := make([]byte, 2*len(units))
	for i, u := range units {
		byteOrder.PutUint16(data[2*i:], u)
	}
	writeElement(body, miUINT16, data)
	finishMatrix(buf, body)
}

func writeStruct(buf *bytes.Buffer, name string, s Struct) error {
	body := matrixBody(mxSTRUCT, []int{1, 1}, name)
	writeSmallElement(body, miINT32, int32Bytes(fieldNameBytes))

	names := make([]byte, fieldNameBytes*len(s))
	for i, f := range s {
		if len(f.Name) >= fieldNameBytes {
			return fmt.Errorf("matfile: field name %q longer than %d bytes", f.Name, fieldNameBytes-1)
		}
		copy(names[i*fieldNameBytes:], f.Name)
	}
	writeElement(body, miINT8, names)

	for _, f := range s {
		if err := writeMatrix(body, "", f.Value); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	finishMatrix(buf, body)
	return nil
}
