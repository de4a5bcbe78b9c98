package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// MapToStruct fills the fields of v that carry an `ini:"name"` tag from the
// keys of s. Keys present in s without a matching field are rejected.
// Fields may name a `parse:"Method"` on v with the signature
// func(*ini.Section, *ini.Key) (any, error) to override conversion.
func MapToStruct(s *ini.Section, v interface{}) error {
	typ := reflect.TypeOf(v)
	val := reflect.ValueOf(v)
	if typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		panic("MapToStruct requires a pointer to a struct")
	}
	typ = typ.Elem()
	val = val.Elem()

	known := make(map[string]bool)
	for i := 0; i < typ.NumField(); i++ {
		fieldVal := val.Field(i)
		fieldType := typ.Field(i)

		name := fieldType.Tag.Get("ini")
		if name == "" || name == "-" {
			continue
		}
		known[name] = true
		key, err := s.GetKey(name)
		if err != nil {
			continue
		}
		err = setField(s, key, reflect.ValueOf(v), fieldVal, fieldType)
		if err != nil {
			return fmt.Errorf("[%s].%s: %w", s.Name(), name, err)
		}
	}
	for _, key := range s.KeyStrings() {
		if !known[key] {
			return fmt.Errorf("[%s]: unknown key %q", s.Name(), key)
		}
	}
	return nil
}

func setField(
	s *ini.Section, key *ini.Key, struc reflect.Value,
	fieldVal reflect.Value, fieldType reflect.StructField,
) error {
	method := getParseMethod(s, key, struc, fieldType)
	if method.IsValid() {
		in := []reflect.Value{reflect.ValueOf(s), reflect.ValueOf(key)}
		out := method.Call(in)
		err, _ := out[1].Interface().(error)
		if err != nil {
			return err
		}
		if !out[0].IsNil() {
			fieldVal.Set(out[0].Elem().Convert(fieldType.Type))
		}
		return nil
	}

	ft := fieldType.Type
	switch ft.Kind() {
	case reflect.String:
		fieldVal.SetString(key.String())
	case reflect.Bool:
		boolVal, err := key.Bool()
		if err != nil {
			return err
		}
		fieldVal.SetBool(boolVal)
	case reflect.Int64:
		if ft == reflect.TypeOf(time.Duration(0)) {
			durationVal, err := key.Duration()
			if err != nil {
				return err
			}
			fieldVal.Set(reflect.ValueOf(durationVal))
			return nil
		}
		fallthrough
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		intVal, err := key.Int64()
		if err != nil {
			return err
		}
		fieldVal.SetInt(intVal)
	case reflect.Slice:
		if ft.Elem().Kind() != reflect.String {
			panic(fmt.Sprintf("unsupported type []%s", ft.Elem()))
		}
		delim := fieldType.Tag.Get("delim")
		var values []string
		if delim == "" {
			values = strings.Fields(key.String())
		} else {
			values = key.Strings(delim)
		}
		fieldVal.Set(reflect.ValueOf(values).Convert(ft))
	case reflect.Ptr:
		if ft.Elem().Kind() != reflect.String {
			panic(fmt.Sprintf("unsupported type *%s", ft.Elem()))
		}
		str := key.String()
		fieldVal.Set(reflect.ValueOf(&str))
	default:
		panic(fmt.Sprintf("unsupported type %s", ft))
	}
	return nil
}

func getParseMethod(
	section *ini.Section, key *ini.Key,
	struc reflect.Value, typ reflect.StructField,
) reflect.Value {
	methodName, found := typ.Tag.Lookup("parse")
	if !found {
		return reflect.Value{}
	}
	method := struc.MethodByName(methodName)
	if !method.IsValid() {
		panic(fmt.Sprintf("(*%s).%s: method not found",
			struc.Elem().Type().Name(), methodName))
	}

	if method.Type().NumIn() != 2 ||
		method.Type().In(0) != reflect.TypeOf(section) ||
		method.Type().In(1) != reflect.TypeOf(key) ||
		method.Type().NumOut() != 2 {
		panic(fmt.Sprintf("(*%s).%s: invalid signature, expected %s",
			struc.Elem().Type().Name(), methodName,
			"func(*ini.Section, *ini.Key) (any, error)"))
	}

	return method
}
