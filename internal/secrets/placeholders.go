package secrets

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const Scheme = "vault://"

// Resolver turns a secret reference into its value.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// IsReference reports whether s points at a secret store.
func IsReference(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), Scheme)
}

// ReplacePlaceholders resolves every vault:// string reachable from target, which
// must be a non-nil pointer to a struct. Exported string fields, nested structs
// and map[string]string values are visited. Errors name the field path.
func ReplacePlaceholders(ctx context.Context, target any, resolver Resolver) error {
	if target == nil || resolver == nil {
		return nil
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Pointer || val.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}
	return walk(ctx, val.Elem(), "", resolver)
}

func walk(ctx context.Context, val reflect.Value, path string, resolver Resolver) error {
	switch val.Kind() {
	case reflect.Pointer:
		if val.IsNil() {
			return nil
		}
		return walk(ctx, val.Elem(), path, resolver)
	case reflect.Struct:
		t := val.Type()
		for i := 0; i < val.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := walk(ctx, val.Field(i), join(path, t.Field(i).Name), resolver); err != nil {
				return err
			}
		}
	case reflect.String:
		if !val.CanSet() || !IsReference(val.String()) {
			return nil
		}
		resolved, err := resolver.Resolve(ctx, strings.TrimSpace(val.String()))
		if err != nil {
			return fmt.Errorf("%s: resolve %s: %w", path, val.String(), err)
		}
		val.SetString(resolved)
	case reflect.Map:
		if val.Type().Elem().Kind() != reflect.String {
			return nil
		}
		iter := val.MapRange()
		for iter.Next() {
			raw := iter.Value().String()
			if !IsReference(raw) {
				continue
			}
			resolved, err := resolver.Resolve(ctx, strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%s[%v]: resolve %s: %w", path, iter.Key(), raw, err)
			}
			val.SetMapIndex(iter.Key(), reflect.ValueOf(resolved).Convert(val.Type().Elem()))
		}
	}
	return nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
