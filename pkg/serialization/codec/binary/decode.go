package binary

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/bits"
	"reflect"
	"strconv"
)

// Unmarshaler is the interface implemented by types that decode themselves
// from a stream. An implementation must consume exactly the bytes its
// MarshalCodec counterpart produced.
type Unmarshaler interface {
	UnmarshalCodec(r io.Reader) error
}

// Unmarshal decodes data into dst, which must be a non-nil pointer to a
// value of a type the encoding supports. Trailing bytes are not an error;
// callers that require exact consumption should decode through a Decoder.
func Unmarshal(data []byte, dst any) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf(ErrUnsupportedType, dst)
	}

	br := byteReader{Reader: bytes.NewBuffer(data)}
	return br.unmarshal(indirect(dstv))
}

// Decoder reads deterministically encoded values from a stream.
type Decoder struct {
	byteReader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{byteReader{Reader: r}}
}

// Decode reads the next value from the stream into dst.
func (d *Decoder) Decode(dst any) error {
	dstv := reflect.ValueOf(dst)
	if dstv.Kind() != reflect.Ptr || dstv.IsNil() {
		return fmt.Errorf(ErrUnsupportedType, dst)
	}
	return d.unmarshal(indirect(dstv))
}

type byteReader struct {
	io.Reader
}

func (br *byteReader) unmarshal(value reflect.Value) error {
	if value.CanAddr() {
		if unmarshaler, ok := value.Addr().Interface().(Unmarshaler); ok {
			return unmarshaler.UnmarshalCodec(br.Reader)
		}
	}

	in := value.Interface()
	switch in.(type) {
	case int, uint:
		return br.decodeCompact(value)
	case int8, uint8, int16, uint16, int32, uint32, int64, uint64:
		l, err := intLength(in)
		if err != nil {
			return err
		}
		return br.decodeFixedWidth(value, l)
	case []byte:
		return br.decodeBytes(value)
	case string:
		return br.decodeString(value)
	case bool:
		return br.decodeBool(value)
	default:
		return br.handleReflectTypes(value)
	}
}

func (br *byteReader) handleReflectTypes(value reflect.Value) error {
	switch value.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return br.decodeNamedPrimitive(value)
	case reflect.Ptr:
		return br.decodePointer(value)
	case reflect.Struct:
		return br.decodeStruct(value)
	case reflect.Array:
		return br.decodeArray(value)
	case reflect.Slice:
		if value.Type() == reflect.TypeOf([]byte{}) {
			return br.decodeBytes(value)
		}
		return br.decodeSlice(value)
	case reflect.Map:
		return br.decodeMap(value)
	default:
		return fmt.Errorf(ErrUnsupportedType, value.Interface())
	}
}

func (br *byteReader) decodeNamedPrimitive(value reflect.Value) error {
	inType := value.Type()

	var temp reflect.Value
	switch inType.Kind() {
	case reflect.Bool:
		temp = reflect.New(reflect.TypeOf(false))
	case reflect.String:
		temp = reflect.New(reflect.TypeOf(""))
	case reflect.Int:
		temp = reflect.New(reflect.TypeOf(int(0)))
	case reflect.Int8:
		temp = reflect.New(reflect.TypeOf(int8(0)))
	case reflect.Int16:
		temp = reflect.New(reflect.TypeOf(int16(0)))
	case reflect.Int32:
		temp = reflect.New(reflect.TypeOf(int32(0)))
	case reflect.Int64:
		temp = reflect.New(reflect.TypeOf(int64(0)))
	case reflect.Uint:
		temp = reflect.New(reflect.TypeOf(uint(0)))
	case reflect.Uint8:
		temp = reflect.New(reflect.TypeOf(uint8(0)))
	case reflect.Uint16:
		temp = reflect.New(reflect.TypeOf(uint16(0)))
	case reflect.Uint32:
		temp = reflect.New(reflect.TypeOf(uint32(0)))
	case reflect.Uint64:
		temp = reflect.New(reflect.TypeOf(uint64(0)))
	default:
		return fmt.Errorf(ErrUnsupportedType, value.Interface())
	}

	if err := br.unmarshal(temp.Elem()); err != nil {
		return err
	}
	value.Set(temp.Elem().Convert(inType))
	return nil
}

func (br *byteReader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(br.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (br *byteReader) decodePointer(value reflect.Value) error {
	isNil, err := br.readPointerMarker()
	if err != nil {
		return err
	}

	if isNil {
		if !value.IsNil() {
			value.Set(reflect.Zero(value.Type()))
		}
		return nil
	}

	if value.IsNil() {
		value.Set(reflect.New(value.Type().Elem()))
	}
	return br.unmarshal(value.Elem())
}

func (br *byteReader) decodeSlice(value reflect.Value) error {
	l, err := br.decodeLength()
	if err != nil {
		return err
	}
	sliceType := value.Type()
	temp := reflect.MakeSlice(sliceType, 0, int(l))
	for i := uint(0); i < l; i++ {
		elem := reflect.New(sliceType.Elem()).Elem()
		if err := br.unmarshal(elem); err != nil {
			return err
		}
		temp = reflect.Append(temp, elem)
	}
	value.Set(temp)
	return nil
}

func (br *byteReader) decodeArray(value reflect.Value) error {
	temp := reflect.New(value.Type()).Elem()
	if value.Type().Elem().Kind() == reflect.Uint8 {
		raw := make([]byte, temp.Len())
		if _, err := io.ReadFull(br.Reader, raw); err != nil {
			return fmt.Errorf(ErrReadingBytes, err)
		}
		reflect.Copy(temp, reflect.ValueOf(raw))
		value.Set(temp)
		return nil
	}
	for i := 0; i < temp.Len(); i++ {
		if err := br.unmarshal(temp.Index(i)); err != nil {
			return err
		}
	}
	value.Set(temp)
	return nil
}

func (br *byteReader) decodeMap(value reflect.Value) error {
	mapType := value.Type()

	length, err := br.decodeLength()
	if err != nil {
		return fmt.Errorf(ErrDecodingMapLength, err)
	}

	temp := reflect.MakeMapWithSize(mapType, int(length))
	for i := uint(0); i < length; i++ {
		key := reflect.New(mapType.Key()).Elem()
		if err := br.unmarshal(key); err != nil {
			return fmt.Errorf(ErrDecodingMapKey, err)
		}

		elem := reflect.New(mapType.Elem()).Elem()
		if err := br.unmarshal(elem); err != nil {
			return fmt.Errorf(ErrDecodingMapValue, err)
		}

		temp.SetMapIndex(key, elem)
	}

	value.Set(temp)
	return nil
}

func (br *byteReader) decodeStruct(value reflect.Value) error {
	t := value.Type()

	for i := 0; i < value.NumField(); i++ {
		field := value.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}
		if tag, ok := fieldType.Tag.Lookup("codec"); ok {
			if tag == "-" {
				continue
			}
			tagValues := parseTag(tag)
			if length, ok := tagValues["length"]; ok {
				size, err := strconv.ParseUint(length, 10, 64)
				if err != nil {
					return fmt.Errorf(ErrInvalidLengthTag, fieldType.Name, err)
				}
				if err := br.decodeFixedWidth(field, uint(size)); err != nil {
					return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
				}
				continue
			}
			if encoding, ok := tagValues["encoding"]; ok && encoding == "compact" {
				if err := br.decodeCompactField(field); err != nil {
					return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
				}
				continue
			}
		}

		if err := br.unmarshal(field); err != nil {
			return fmt.Errorf(ErrDecodingStructField, fieldType.Name, err)
		}
	}

	return nil
}

func (br *byteReader) decodeBool(value reflect.Value) error {
	b, err := br.readByte()
	if err != nil {
		return err
	}

	switch b {
	case 0x00:
		value.SetBool(false)
	case 0x01:
		value.SetBool(true)
	default:
		return ErrDecodingBool
	}
	return nil
}

// decodeCompact reads a compact natural into an int or uint destination.
func (br *byteReader) decodeCompact(value reflect.Value) error {
	v, err := br.readCompact()
	if err != nil {
		return err
	}
	value.Set(reflect.ValueOf(v).Convert(value.Type()))
	return nil
}

// decodeCompactField reads a compact natural into a sized unsigned field
// tagged with encoding=compact.
func (br *byteReader) decodeCompactField(value reflect.Value) error {
	switch value.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := br.readCompact()
		if err != nil {
			return err
		}
		value.SetUint(v)
		return nil
	default:
		return fmt.Errorf(ErrNonCompactField, value.Kind())
	}
}

func (br *byteReader) readCompact() (uint64, error) {
	prefix, err := br.readByte()
	if err != nil {
		return 0, fmt.Errorf(ErrReadingByte, err)
	}

	// The run of leading one bits in the prefix gives the number of
	// following bytes.
	l := uint8(bits.LeadingZeros8(^prefix))

	encoded := make([]byte, l+1)
	encoded[0] = prefix
	if l > 0 {
		if _, err := io.ReadFull(br.Reader, encoded[1:]); err != nil {
			return 0, fmt.Errorf(ErrReadingBytes, err)
		}
	}

	var v uint64
	if err := decodeUintBytes(encoded, l, &v); err != nil {
		return 0, fmt.Errorf(ErrDecodingUint, err)
	}
	return v, nil
}

func (br *byteReader) decodeLength() (uint, error) {
	v, err := br.readCompact()
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

func (br *byteReader) decodeBytes(dstv reflect.Value) error {
	length, err := br.decodeLength()
	if err != nil {
		return err
	}
	return br.decodeBytesFixedLength(dstv, length)
}

func (br *byteReader) decodeBytesFixedLength(dstv reflect.Value, length uint) error {
	if length > math.MaxUint32 {
		return ErrByteLengthTooBig
	}

	b := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(br.Reader, b); err != nil {
			return fmt.Errorf(ErrReadingBytes, err)
		}
	}

	dstv.Set(reflect.ValueOf(b).Convert(dstv.Type()))
	return nil
}

func (br *byteReader) decodeString(dstv reflect.Value) error {
	length, err := br.decodeLength()
	if err != nil {
		return err
	}
	if length > math.MaxUint32 {
		return ErrByteLengthTooBig
	}

	b := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(br.Reader, b); err != nil {
			return fmt.Errorf(ErrReadingBytes, err)
		}
	}

	dstv.Set(reflect.ValueOf(string(b)).Convert(dstv.Type()))
	return nil
}

func (br *byteReader) decodeFixedWidth(dstv reflect.Value, length uint) error {
	typ := dstv.Type()

	if typ.Kind() == reflect.Ptr {
		isNil, err := br.readPointerMarker()
		if err != nil {
			return err
		}
		if isNil {
			dstv.Set(reflect.Zero(typ))
			return nil
		}
		if dstv.IsNil() {
			dstv.Set(reflect.New(typ.Elem()))
		}
		dstv = dstv.Elem()
		typ = typ.Elem()
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(br.Reader, buf); err != nil {
		return fmt.Errorf(ErrReadingBytes, err)
	}
	raw := decodeFixed(buf)

	switch typ.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		dstv.SetUint(raw)
	case reflect.Int8:
		dstv.SetInt(int64(int8(raw)))
	case reflect.Int16:
		dstv.SetInt(int64(int16(raw)))
	case reflect.Int32:
		dstv.SetInt(int64(int32(raw)))
	case reflect.Int64, reflect.Int:
		dstv.SetInt(int64(raw))
	default:
		return fmt.Errorf(ErrUnsupportedType, dstv.Interface())
	}

	return nil
}

func (br *byteReader) readPointerMarker() (bool, error) {
	marker, err := br.readByte()
	if err != nil {
		return false, err
	}

	switch marker {
	case 0x00:
		return true, nil
	case 0x01:
		return false, nil
	default:
		return false, ErrInvalidPointer
	}
}

// indirect dereferences pointers, allocating as needed, until it reaches a
// non-pointer value.
func indirect(v reflect.Value) reflect.Value {
	for {
		switch v.Kind() {
		case reflect.Ptr:
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		case reflect.Interface:
			if v.IsNil() {
				return v
			}
			v = v.Elem()
		default:
			return v
		}
	}
}
