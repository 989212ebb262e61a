// Package tensor holds the dense numeric arrays exchanged with the sequence
// model and their numpy (.npz) encoding.
package tensor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sbinet/npyio/npz"
)

// Archive member names.
const (
	shapeKey = "shape.npy"
	dataKey  = "data.npy"
)

// Tensor is a row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor of the given shape.
func New(shape ...int) Tensor {
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, numel(shape))}
}

// Len returns the number of elements implied by the shape.
func (t Tensor) Len() int {
	return numel(t.Shape)
}

// Validate reports whether the data length matches the shape.
func (t Tensor) Validate() error {
	if n := t.Len(); n != len(t.Data) {
		return fmt.Errorf("tensor shape %v needs %d values, have %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// Equal reports whether two tensors have identical shape and values.
func (t Tensor) Equal(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	for i := range t.Data {
		if t.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

func numel(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Encode writes t as an .npz archive holding "shape" (int64) and "data" (float32).
func Encode(w io.Writer, t Tensor) error {
	if err := t.Validate(); err != nil {
		return err
	}

	shape := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		shape[i] = int64(d)
	}

	zw := npz.NewWriter(w)
	if err := zw.Write(shapeKey, shape); err != nil {
		zw.Close()
		return fmt.Errorf("write tensor shape: %w", err)
	}
	if err := zw.Write(dataKey, t.Data); err != nil {
		zw.Close()
		return fmt.Errorf("write tensor data: %w", err)
	}
	return zw.Close()
}

// Decode reads a tensor written by Encode.
func Decode(b []byte) (Tensor, error) {
	zr, err := npz.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return Tensor{}, fmt.Errorf("open npz: %w", err)
	}

	var shape []int64
	if err := zr.Read(shapeKey, &shape); err != nil {
		return Tensor{}, fmt.Errorf("read tensor shape: %w", err)
	}
	var data []float32
	if err := zr.Read(dataKey, &data); err != nil {
		return Tensor{}, fmt.Errorf("read tensor data: %w", err)
	}

	t := Tensor{Shape: make([]int, len(shape)), Data: data}
	for i, d := range shape {
		t.Shape[i] = int(d)
	}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}
