package modelfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/cwbudde/algo-fxnet/model"
)

// Array is a weight tensor stored as nested JSON arrays.
type Array model.Array

// MarshalJSON writes the values with float32 precision, nested by Shape.
func (a Array) MarshalJSON() ([]byte, error) {
	if len(a.Shape) == 0 {
		return nil, fmt.Errorf("weight array without shape")
	}
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	if n != len(a.Data) {
		return nil, fmt.Errorf("weight array shape %v holds %d values, have %d", a.Shape, n, len(a.Data))
	}
	var buf bytes.Buffer
	pos := 0
	if err := writeNested(&buf, a.Shape, a.Data, &pos); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNested(buf *bytes.Buffer, shape []int, data []float32, pos *int) error {
	buf.WriteByte('[')
	for i := 0; i < shape[0]; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(shape) > 1 {
			if err := writeNested(buf, shape[1:], data, pos); err != nil {
				return err
			}
			continue
		}
		v := data[*pos]
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("non-finite weight %v at index %d", v, *pos)
		}
		buf.Write(strconv.AppendFloat(nil, float64(v), 'g', -1, 32))
		*pos++
	}
	buf.WriteByte(']')
	return nil
}

// UnmarshalJSON reads a rectangular nested array of numbers.
func (a *Array) UnmarshalJSON(b []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	shape, err := inferShape(v)
	if err != nil {
		return err
	}
	data := make([]float32, 0, numel(shape))
	if err := flatten(v, shape, &data); err != nil {
		return err
	}
	a.Shape, a.Data = shape, data
	return nil
}

func inferShape(v any) ([]int, error) {
	var shape []int
	for {
		arr, ok := v.([]any)
		if !ok {
			break
		}
		shape = append(shape, len(arr))
		if len(arr) == 0 {
			break
		}
		v = arr[0]
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("weight is not an array")
	}
	return shape, nil
}

func flatten(v any, shape []int, out *[]float32) error {
	arr, ok := v.([]any)
	if !ok || len(arr) != shape[0] {
		return fmt.Errorf("ragged weight array, expected %d entries", shape[0])
	}
	for _, e := range arr {
		if len(shape) > 1 {
			if err := flatten(e, shape[1:], out); err != nil {
				return err
			}
			continue
		}
		num, ok := e.(json.Number)
		if !ok {
			return fmt.Errorf("weight entry %v is not a number", e)
		}
		f, err := strconv.ParseFloat(string(num), 32)
		if err != nil {
			return fmt.Errorf("weight entry %q: %w", num, err)
		}
		*out = append(*out, float32(f))
	}
	return nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
