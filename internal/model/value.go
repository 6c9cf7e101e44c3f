package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind tells what a Value holds.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindNumber
	KindText
)

// Value is a cell of a result table: nothing, a number or a text.
type Value struct {
	kind ValueKind
	num  float64
	str  string
}

// Number wraps f.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps s. An empty string is still a text value; use Empty for absence.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Empty is the absent value.
func Empty() Value { return Value{} }

// ValueOf wraps a long-form cell (float64, string or nil).
func ValueOf(v any) Value {
	switch val := v.(type) {
	case nil:
		return Empty()
	case Value:
		return val
	case float64:
		return Number(val)
	case int:
		return Number(float64(val))
	case string:
		return Text(val)
	default:
		return Text(fmt.Sprint(v))
	}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

func (v Value) IsNumber() bool { return v.kind == KindNumber }

// Float returns the number; zero for text and empty values.
func (v Value) Float() float64 { return v.num }

// Raw returns float64, string or nil.
func (v Value) Raw() any { return v.raw() }

// String renders the value with a "." decimal mark; empty renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.str
	default:
		return ""
	}
}

func (v Value) raw() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.str
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}
