package tensors

// Value is the serialisable form of a Tensor used by record files.
type Value struct {
	DType string    `json:"dtype" cbor:"dtype"`
	Shape []int64   `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data" cbor:"data"`
}

// ToValue converts a tensor to its serialisable form.
func ToValue(t *Tensor) Value {
	return Value{
		DType: t.DType().String(),
		Shape: t.Shape(),
		Data:  t.Float64Values(),
	}
}

// Tensor materialises the value.
func (v Value) Tensor() (*Tensor, error) {
	dtype, err := ParseDataType(v.DType)
	if err != nil {
		return nil, err
	}
	t, err := New(Spec{DType: dtype, Shape: v.Shape})
	if err != nil {
		return nil, err
	}
	if err = t.SetFloat64Values(v.Data); err != nil {
		return nil, err
	}
	return t, nil
}
