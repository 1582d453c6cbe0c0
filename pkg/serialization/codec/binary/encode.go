// Package binary implements the deterministic binary encoding shared by all
// participants of the store: identical logical values always produce
// identical bytes, which makes the encoding usable for both stored values
// and derived keys. Naturals use a compact variable-length scheme, sized
// integers a little-endian fixed width, sequences a length prefix, maps are
// encoded with their keys sorted, and optional values carry a one-byte
// presence marker.
package binary

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
)

// Marshaler is the interface implemented by types that encode themselves.
// The produced bytes must be deterministic for the encoding of the
// enclosing value to stay deterministic.
type Marshaler interface {
	MarshalCodec() ([]byte, error)
}

// Marshal returns the deterministic binary encoding of v.
func Marshal(v any) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	bw := byteWriter{Writer: buffer}
	if err := bw.marshal(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Encoder writes deterministically encoded values to a stream.
type Encoder struct {
	byteWriter
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{byteWriter{Writer: w}}
}

// Encode appends the encoding of v to the stream.
func (e *Encoder) Encode(v any) error {
	return e.marshal(v)
}

type byteWriter struct {
	io.Writer
}

func (bw *byteWriter) marshal(in any) error {
	if marshaler, ok := in.(Marshaler); ok {
		b, err := marshaler.MarshalCodec()
		if err != nil {
			return err
		}
		_, err = bw.Write(b)
		return err
	}

	switch v := in.(type) {
	case int:
		return bw.encodeCompact(uint64(v))
	case uint:
		return bw.encodeCompact(uint64(v))
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		l, err := intLength(v)
		if err != nil {
			return err
		}
		return bw.encodeFixedWidth(v, l)
	case []byte:
		return bw.encodeBytes(v)
	case string:
		return bw.encodeBytes([]byte(v))
	case bool:
		return bw.encodeBool(v)
	default:
		return bw.handleReflectTypes(v)
	}
}

func (bw *byteWriter) handleReflectTypes(in any) error {
	val := reflect.ValueOf(in)
	switch val.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return bw.encodeNamedPrimitive(in)
	case reflect.Ptr:
		if err := bw.writePointerMarker(val.IsNil()); err != nil {
			return err
		}
		if val.IsNil() {
			return nil
		}
		return bw.marshal(val.Elem().Interface())
	case reflect.Struct:
		return bw.encodeStruct(in)
	case reflect.Array:
		return bw.encodeArray(in)
	case reflect.Slice:
		if b, ok := in.([]byte); ok {
			return bw.encodeBytes(b)
		}
		return bw.encodeSlice(in)
	case reflect.Map:
		return bw.encodeMap(in)
	default:
		return fmt.Errorf(ErrUnsupportedType, in)
	}
}

// encodeNamedPrimitive converts named primitive types down to their
// underlying type and re-enters marshal.
func (bw *byteWriter) encodeNamedPrimitive(in any) error {
	val := reflect.ValueOf(in)
	var base reflect.Type
	switch val.Kind() {
	case reflect.Bool:
		base = reflect.TypeOf(false)
	case reflect.String:
		base = reflect.TypeOf("")
	case reflect.Int:
		base = reflect.TypeOf(int(0))
	case reflect.Int8:
		base = reflect.TypeOf(int8(0))
	case reflect.Int16:
		base = reflect.TypeOf(int16(0))
	case reflect.Int32:
		base = reflect.TypeOf(int32(0))
	case reflect.Int64:
		base = reflect.TypeOf(int64(0))
	case reflect.Uint:
		base = reflect.TypeOf(uint(0))
	case reflect.Uint8:
		base = reflect.TypeOf(uint8(0))
	case reflect.Uint16:
		base = reflect.TypeOf(uint16(0))
	case reflect.Uint32:
		base = reflect.TypeOf(uint32(0))
	case reflect.Uint64:
		base = reflect.TypeOf(uint64(0))
	default:
		return fmt.Errorf(ErrUnsupportedType, in)
	}
	return bw.marshal(val.Convert(base).Interface())
}

func (bw *byteWriter) encodeSlice(in any) error {
	v := reflect.ValueOf(in)
	if err := bw.encodeLength(v.Len()); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := bw.marshal(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// encodeArray encodes arrays element-wise without a length prefix; the
// length is part of the type.
func (bw *byteWriter) encodeArray(in any) error {
	v := reflect.ValueOf(in)
	if v.Type().Elem().Kind() == reflect.Uint8 {
		raw := make([]byte, v.Len())
		reflect.Copy(reflect.ValueOf(raw), v)
		_, err := bw.Write(raw)
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if err := bw.marshal(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap encodes a map with its keys sorted, so that iteration order
// cannot leak into the encoding.
func (bw *byteWriter) encodeMap(in any) error {
	v := reflect.ValueOf(in)
	if v.Kind() != reflect.Map {
		return fmt.Errorf(ErrUnsupportedType, in)
	}

	keys := v.MapKeys()
	if err := bw.encodeLength(len(keys)); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := sortMapKeys(keys); err != nil {
		return err
	}

	for _, key := range keys {
		if err := bw.marshal(key.Interface()); err != nil {
			return err
		}
		if err := bw.marshal(v.MapIndex(key).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func sortMapKeys(keys []reflect.Value) error {
	switch keys[0].Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].Int() < keys[j].Int()
		})
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].Uint() < keys[j].Uint()
		})
	case reflect.String:
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].String() < keys[j].String()
		})
	case reflect.Bool:
		sort.Slice(keys, func(i, j int) bool {
			return !keys[i].Bool() && keys[j].Bool()
		})
	case reflect.Array:
		if keys[0].Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf(ErrUnsupportedMapKey, keys[0].Type())
		}
		sort.Slice(keys, func(i, j int) bool {
			return bytes.Compare(byteArrayToSlice(keys[i]), byteArrayToSlice(keys[j])) < 0
		})
	default:
		return fmt.Errorf(ErrUnsupportedMapKey, keys[0].Kind())
	}
	return nil
}

func byteArrayToSlice(v reflect.Value) []byte {
	out := make([]byte, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = byte(v.Index(i).Uint())
	}
	return out
}

func (bw *byteWriter) encodeBool(b bool) error {
	var err error
	if b {
		_, err = bw.Write([]byte{0x01})
	} else {
		_, err = bw.Write([]byte{0x00})
	}
	return err
}

func (bw *byteWriter) encodeBytes(b []byte) error {
	if err := bw.encodeLength(len(b)); err != nil {
		return err
	}
	_, err := bw.Write(b)
	return err
}

func (bw *byteWriter) encodeFixedWidth(in any, l uint) error {
	val := reflect.ValueOf(in)

	if val.Kind() == reflect.Ptr {
		if err := bw.writePointerMarker(val.IsNil()); err != nil {
			return err
		}
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		_, err := bw.Write(encodeFixed(val.Uint(), l))
		return err
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		_, err := bw.Write(encodeFixed(uint64(val.Int()), l))
		return err
	default:
		return fmt.Errorf(ErrUnsupportedType, in)
	}
}

func (bw *byteWriter) writePointerMarker(isNil bool) error {
	marker := byte(0x00)
	if !isNil {
		marker = 0x01
	}
	_, err := bw.Write([]byte{marker})
	return err
}

func (bw *byteWriter) encodeStruct(in any) error {
	v := reflect.ValueOf(in)
	t := reflect.TypeOf(in)

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanInterface() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("codec"); ok {
			if tag == "-" {
				continue
			}

			tagValues := parseTag(tag)
			encoding, hasEncoding := tagValues["encoding"]
			if length, ok := tagValues["length"]; ok {
				if hasEncoding {
					return fmt.Errorf(ErrConflictingTags, fieldType.Name)
				}
				size, err := strconv.ParseUint(length, 10, 64)
				if err != nil {
					return fmt.Errorf(ErrInvalidLengthTag, fieldType.Name, err)
				}
				if err := bw.encodeFixedWidth(field.Interface(), uint(size)); err != nil {
					return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
				}
				continue
			}
			if hasEncoding && encoding == "compact" {
				switch field.Kind() {
				case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
					if err := bw.encodeCompact(field.Uint()); err != nil {
						return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
					}
					continue
				default:
					return fmt.Errorf(ErrNonCompactField, field.Kind())
				}
			}
		}

		if err := bw.marshal(field.Interface()); err != nil {
			return fmt.Errorf(ErrEncodingStructField, fieldType.Name, err)
		}
	}

	return nil
}

func (bw *byteWriter) encodeLength(l int) error {
	return bw.encodeCompact(uint64(l))
}

func (bw *byteWriter) encodeCompact(x uint64) error {
	_, err := bw.Write(EncodeUint(x))
	return err
}
