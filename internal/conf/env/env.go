// Package env contains a function to load configuration from environment.
package env

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Unmarshaler can be implemented to override the unmarshaling process.
type Unmarshaler interface {
	UnmarshalEnv(prefix string, v string) error
}

func hasKeyWithPrefix(env map[string]string, prefix string) bool {
	for key := range env {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "true":
		return true, nil

	case "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid value '%s'", v)
}

func loadScalar(prefix string, ev string, v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(ev)

	case reflect.Bool:
		b, err := parseBool(ev)
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		v.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		iv, err := strconv.ParseInt(ev, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		v.SetInt(iv)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uv, err := strconv.ParseUint(ev, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		v.SetUint(uv)

	case reflect.Float32, reflect.Float64:
		fv, err := strconv.ParseFloat(ev, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		v.SetFloat(fv)

	default:
		return fmt.Errorf("unsupported type: %v", v.Type())
	}

	return nil
}

func loadInternal(env map[string]string, prefix string, prv reflect.Value) error {
	if prv.Kind() != reflect.Pointer {
		return loadInternal(env, prefix, prv.Addr())
	}

	rt := prv.Type().Elem()

	if i, ok := prv.Interface().(Unmarshaler); ok {
		ev, ok2 := env[prefix]
		if !ok2 {
			return nil
		}

		err := i.UnmarshalEnv(prefix, ev)
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		return nil
	}

	// optional values are stored as pointers to pointers
	if rt.Kind() == reflect.Pointer {
		if !hasKeyWithPrefix(env, prefix) {
			return nil
		}
		if prv.Elem().IsNil() {
			prv.Elem().Set(reflect.New(rt.Elem()))
		}
		return loadInternal(env, prefix, prv.Elem())
	}

	switch rt.Kind() {
	case reflect.Map:
		for k := range env {
			if !strings.HasPrefix(k, prefix+"_") {
				continue
			}

			mapKey := strings.Split(k[len(prefix+"_"):], "_")[0]
			if mapKey == "" || mapKey != strings.ToUpper(mapKey) {
				continue
			}

			if prv.Elem().IsNil() {
				prv.Elem().Set(reflect.MakeMap(rt))
			}

			mapKeyLower := reflect.ValueOf(strings.ToLower(mapKey))
			nv := prv.Elem().MapIndex(mapKeyLower)
			if !nv.IsValid() {
				nv = reflect.New(rt.Elem().Elem())
				prv.Elem().SetMapIndex(mapKeyLower, nv)
			}

			err := loadInternal(env, prefix+"_"+mapKey, nv.Elem())
			if err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		for i := range rt.NumField() {
			f := rt.Field(i)
			jsonTag := strings.Split(f.Tag.Get("json"), ",")[0]
			if jsonTag == "" || jsonTag == "-" {
				continue
			}

			err := loadInternal(env, prefix+"_"+strings.ToUpper(jsonTag), prv.Elem().Field(i))
			if err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice:
		ev, ok := env[prefix]
		if !ok {
			return nil
		}

		if ev == "" {
			prv.Elem().Set(reflect.MakeSlice(rt, 0, 0))
			return nil
		}

		parts := strings.Split(ev, ",")
		sl := reflect.MakeSlice(rt, len(parts), len(parts))
		for i, part := range parts {
			err := loadScalar(prefix, part, sl.Index(i))
			if err != nil {
				return err
			}
		}
		prv.Elem().Set(sl)
		return nil
	}

	if ev, ok := env[prefix]; ok {
		return loadScalar(prefix, ev, prv.Elem())
	}

	return nil
}

func loadWithEnv(env map[string]string, prefix string, v any) error {
	return loadInternal(env, prefix, reflect.ValueOf(v).Elem())
}

func envToMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		tmp := strings.SplitN(kv, "=", 2)
		env[tmp[0]] = tmp[1]
	}
	return env
}

// Load loads the configuration from the environment.
func Load(prefix string, v any) error {
	return loadWithEnv(envToMap(), prefix, v)
}
