package bencode

import (
	"fmt"
	"reflect"
)

// Unmarshal decodes a bencoded dictionary directly into a struct pointed to
// by v, matching dict keys to fields via a `bencode:"key"` tag (falling back
// to the field name when no tag is present). Supports string, []byte, int
// family, and nested struct fields — enough for tracker response structs
// (see tracker.httpAnnounceResponse), mirroring the struct-tag pattern
// StupidAfCoder-GoRent's tracker client uses against jackpal/bencode-go,
// layered on top of gtorrent's own Data tree instead of adopting that
// dependency.
func Unmarshal(content []byte, v any) error {
	data, _, err := Decode(content)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("bencode: empty content")
	}
	return unmarshalInto(data, reflect.ValueOf(v))
}

func unmarshalInto(data *Data, rv reflect.Value) error {
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("bencode: Unmarshal target must be a non-nil pointer")
	}
	elem := rv.Elem()
	if elem.Kind() != reflect.Struct {
		return fmt.Errorf("bencode: Unmarshal target must point to a struct")
	}
	if data.Type != DICT {
		return fmt.Errorf("bencode: expected dictionary to unmarshal into struct")
	}
	dict := data.AsDict()

	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		key := field.Tag.Get("bencode")
		if key == "" {
			key = field.Name
		}
		val, ok := dict[key]
		if !ok {
			continue
		}
		if err := assignField(val, elem.Field(i)); err != nil {
			return fmt.Errorf("bencode: field %s: %w", field.Name, err)
		}
	}
	return nil
}

func assignField(val *Data, fv reflect.Value) error {
	switch fv.Kind() {
	case reflect.String:
		if val.Type != STRING {
			return fmt.Errorf("expected string, got type %d", val.Type)
		}
		fv.SetString(val.AsString())
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			if val.Type != STRING {
				return fmt.Errorf("expected byte string, got type %d", val.Type)
			}
			fv.SetBytes(val.AsBytes())
			return nil
		}
		return fmt.Errorf("unsupported slice element type %s", fv.Type().Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if val.Type != INTEGER {
			return fmt.Errorf("expected integer, got type %d", val.Type)
		}
		fv.SetInt(val.AsInt())
	case reflect.Struct:
		return unmarshalInto(val, fv.Addr())
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}
