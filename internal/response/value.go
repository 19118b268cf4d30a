package response

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ValueKind discriminates the variants a field value can hold.
type ValueKind int

const (
	// KindEmpty is an unanswered field (wire/storage form: null).
	KindEmpty ValueKind = iota
	// KindScalar is a single string answer (text, number, email, date,
	// select, radio; all carried as strings on the wire).
	KindScalar
	// KindMultiSelect is a list of selected option values (checkbox).
	KindMultiSelect
)

// Value is the tagged variant stored in a FieldValue. The zero Value
// is the empty variant.
type Value struct {
	kind   ValueKind
	scalar string
	multi  []string
}

func EmptyValue() Value {
	return Value{}
}

func ScalarValue(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

func MultiSelectValue(vs []string) Value {
	return Value{kind: KindMultiSelect, multi: append([]string(nil), vs...)}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Scalar returns the scalar string and whether the value holds one.
func (v Value) Scalar() (string, bool) {
	return v.scalar, v.kind == KindScalar
}

// MultiSelect returns the selected values and whether the value holds them.
func (v Value) MultiSelect() ([]string, bool) {
	if v.kind != KindMultiSelect {
		return nil, false
	}
	return append([]string(nil), v.multi...), true
}

// Equal compares two values structurally.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.scalar == o.scalar
	case KindMultiSelect:
		if len(v.multi) != len(o.multi) {
			return false
		}
		for i := range v.multi {
			if v.multi[i] != o.multi[i] {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindMultiSelect:
		return fmt.Sprintf("%v", v.multi)
	}
	return ""
}

// Wire/storage format matches the original document layout: null for
// empty, a bare string for scalar, an array of strings for multi-select.

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		return json.Marshal(v.scalar)
	case KindMultiSelect:
		return json.Marshal(v.multi)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value{kind: KindScalar, scalar: s}
		return nil
	case '[':
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return err
		}
		*v = Value{kind: KindMultiSelect, multi: vs}
		return nil
	}
	return fmt.Errorf("field value must be null, a string, or a string array, got %s", data)
}

func (v Value) MarshalBSONValue() (bsontype.Type, []byte, error) {
	switch v.kind {
	case KindScalar:
		return bson.MarshalValue(v.scalar)
	case KindMultiSelect:
		if v.multi == nil {
			return bson.MarshalValue([]string{})
		}
		return bson.MarshalValue(v.multi)
	}
	return bson.TypeNull, nil, nil
}

func (v *Value) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeNull, bson.TypeUndefined:
		*v = Value{}
		return nil
	case bson.TypeString:
		*v = Value{kind: KindScalar, scalar: rv.StringValue()}
		return nil
	case bson.TypeArray:
		var vs []string
		if err := rv.Unmarshal(&vs); err != nil {
			return err
		}
		*v = Value{kind: KindMultiSelect, multi: vs}
		return nil
	}
	return fmt.Errorf("unexpected bson type %s for field value", t)
}
