package domain

import (
	"fmt"
	"time"
)

// Kind tags the scalar type carried by a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single persisted scalar. Only the member matching Kind is meaningful.
type Value struct {
	Kind Kind
	S    string
	N    int64
	B    bool
	T    time.Time
}

func StringValue(s string) Value { return Value{Kind: KindString, S: s} }
func IntValue(n int) Value { return Value{Kind: KindInt, N: int64(n)} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, B: b} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, T: t.UTC()} }

// Fields is the storage-neutral form of an entity: attribute name to value.
type Fields map[string]Value

// Entity is implemented by every record that goes through a key-addressed store.
type Entity interface {
	Identity() (partition, row string)
	ToFields() Fields
	FromFields(Fields) error
}

// Field pairs an attribute name with a typed getter and setter on *T.
type Field[T any] struct {
	Name string
	Kind Kind
	Get  func(*T) Value
	Set  func(*T, Value)
}

// FieldTable is the compile-time mapping used to encode and decode T.
type FieldTable[T any] []Field[T]

// Encode collects every mapped field of e.
func (ft FieldTable[T]) Encode(e *T) Fields {
	out := make(Fields, len(ft))
	for _, f := range ft {
		out[f.Name] = f.Get(e)
	}
	return out
}

// Decode applies fields onto e. Attributes absent from fields leave e untouched,
// so callers seed defaults before decoding. A kind mismatch is an error.
func (ft FieldTable[T]) Decode(e *T, fields Fields) error {
	for _, f := range ft {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		if v.Kind != f.Kind {
			return fmt.Errorf("field %s: want %s, got %s", f.Name, f.Kind, v.Kind)
		}
		f.Set(e, v)
	}
	return nil
}

// Schema maps each attribute name to its kind, for decoders that need the
// expected type of an untyped stored value.
func (ft FieldTable[T]) Schema() map[string]Kind {
	out := make(map[string]Kind, len(ft))
	for _, f := range ft {
		out[f.Name] = f.Kind
	}
	return out
}

// Names lists the attribute names in table order.
func (ft FieldTable[T]) Names() []string {
	names := make([]string, len(ft))
	for i, f := range ft {
		names[i] = f.Name
	}
	return names
}

func stringField[T any](name string, p func(*T) *string) Field[T] {
	return Field[T]{
		Name: name, Kind: KindString,
		Get: func(e *T) Value { return StringValue(*p(e)) },
		Set: func(e *T, v Value) { *p(e) = v.S },
	}
}

func intField[T any](name string, p func(*T) *int) Field[T] {
	return Field[T]{
		Name: name, Kind: KindInt,
		Get: func(e *T) Value { return IntValue(*p(e)) },
		Set: func(e *T, v Value) { *p(e) = int(v.N) },
	}
}

func boolField[T any](name string, p func(*T) *bool) Field[T] {
	return Field[T]{
		Name: name, Kind: KindBool,
		Get: func(e *T) Value { return BoolValue(*p(e)) },
		Set: func(e *T, v Value) { *p(e) = v.B },
	}
}

func timeField[T any](name string, p func(*T) *time.Time) Field[T] {
	return Field[T]{
		Name: name, Kind: KindTime,
		Get: func(e *T) Value { return TimeValue(*p(e)) },
		Set: func(e *T, v Value) { *p(e) = v.T },
	}
}
