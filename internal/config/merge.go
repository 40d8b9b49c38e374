package config

import (
	"reflect"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// MergeNonZero returns a copy of base with every non-zero field of overlay
// applied on top. Scalars and slices override when non-zero. Maps are merged
// key by key with overlay winning. Nested structs are recursed. Bools only
// override when set, so a YAML file cannot switch off a default by omission.
func MergeNonZero[T any](base, overlay T) T {
	result := base
	mergeValue(reflect.ValueOf(&result).Elem(), reflect.ValueOf(&overlay).Elem())
	return result
}

func mergeValue(dst, src reflect.Value) {
	switch dst.Kind() {
	case reflect.Struct:
		mergeStruct(dst, src)
	case reflect.Map:
		mergeMap(dst, src)
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
}

func mergeStruct(dst, src reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		df := dst.Field(i)
		sf := src.Field(i)
		if !df.CanSet() {
			continue
		}

		switch {
		case df.Type() == durationType:
			if sf.Int() != 0 {
				df.Set(sf)
			}
		case df.Kind() == reflect.Struct:
			mergeStruct(df, sf)
		case df.Kind() == reflect.Map:
			mergeMap(df, sf)
		case df.Kind() == reflect.Slice:
			if sf.Len() > 0 {
				df.Set(sf)
			}
		case df.Kind() == reflect.Ptr:
			if !sf.IsNil() {
				df.Set(sf)
			}
		default:
			if !sf.IsZero() {
				df.Set(sf)
			}
		}
	}
}

func mergeMap(dst, src reflect.Value) {
	if src.IsNil() || src.Len() == 0 {
		return
	}
	merged := reflect.MakeMap(dst.Type())
	if !dst.IsNil() {
		// Never mutate the base map; defaults are shared.
		iter := dst.MapRange()
		for iter.Next() {
			merged.SetMapIndex(iter.Key(), iter.Value())
		}
	}
	iter := src.MapRange()
	for iter.Next() {
		merged.SetMapIndex(iter.Key(), iter.Value())
	}
	dst.Set(merged)
}
