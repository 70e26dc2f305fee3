package reconcile

import (
	"reflect"
	"strings"
)

type entry struct {
	value reflect.Value
	class Class
}

type entrySet struct {
	typ     reflect.Type
	entries map[string]entry
}

func entrySets(old, new any, o *options) (*entrySet, *entrySet, error) {
	oldSet, err := collect(old, o)
	if err != nil {
		return nil, nil, err
	}
	newSet, err := collect(new, o)
	if err != nil {
		return nil, nil, err
	}
	if oldSet.typ != newSet.typ {
		return nil, nil, invalid("configurations have different types", map[string]any{
			"old": typeName(old),
			"new": typeName(new),
		})
	}
	return oldSet, newSet, nil
}

func collect(v any, o *options) (*entrySet, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, invalid("configuration is a nil pointer", map[string]any{"type": typeName(v)})
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, invalid("configuration is nil", nil)
	}

	set := &entrySet{typ: rv.Type(), entries: make(map[string]entry)}
	switch rv.Kind() {
	case reflect.Struct:
		collectStruct(rv, "", o, set)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, invalid("configuration map must be keyed by strings", map[string]any{"type": typeName(v)})
		}
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			cls := o.classify(key, ClassUnsafe)
			if cls == ClassSkip {
				continue
			}
			set.entries[key] = entry{value: iter.Value(), class: cls}
		}
	default:
		return nil, invalid("configuration must be a struct or a map", map[string]any{"type": typeName(v)})
	}
	return set, nil
}

func collectStruct(rv reflect.Value, prefix string, o *options, set *entrySet) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectStruct(rv.Field(i), prefix, o, set)
			continue
		}
		if !field.IsExported() {
			continue
		}
		key := prefix + fieldKey(field)
		tag := field.Tag.Get(TagName)
		if isNested(tag) && field.Type.Kind() == reflect.Struct {
			if o.classify(key, ClassUnsafe) == ClassSkip {
				continue
			}
			collectStruct(rv.Field(i), key+".", o, set)
			continue
		}
		cls := o.classify(key, tagClass(tag))
		if cls == ClassSkip {
			continue
		}
		set.entries[key] = entry{value: rv.Field(i), class: cls}
	}
}

func isNested(tag string) bool {
	return strings.EqualFold(strings.TrimSpace(tag), "nested")
}

func tagClass(tag string) Class {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "safe":
		return ClassSafe
	case "skip", "-":
		return ClassSkip
	default:
		return ClassUnsafe
	}
}

func fieldKey(field reflect.StructField) string {
	for _, tag := range []string{"yaml", "json"} {
		name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

// KeyClasses lists the class of every key a struct type declares.
func KeyClasses(v any) (map[string]Class, error) {
	o := buildOptions(nil)
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv = reflect.Zero(rv.Type().Elem())
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return nil, invalid("key classes require a struct", map[string]any{"type": typeName(v)})
	}
	out := make(map[string]Class)
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				walk(field.Type, prefix)
				continue
			}
			if !field.IsExported() {
				continue
			}
			key := prefix + fieldKey(field)
			tag := field.Tag.Get(TagName)
			if isNested(tag) && field.Type.Kind() == reflect.Struct {
				walk(field.Type, key+".")
				continue
			}
			out[key] = o.classify(key, tagClass(tag))
		}
	}
	walk(rv.Type(), "")
	return out, nil
}

type mergeDest struct {
	value reflect.Value
}

func mergeTarget(old any) (*mergeDest, error) {
	rv := reflect.ValueOf(old)
	if rv.Kind() == reflect.Map {
		if rv.IsNil() {
			return nil, invalid("merge target map is nil", nil)
		}
		return &mergeDest{value: rv}, nil
	}
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, invalid("merge target must be a pointer", map[string]any{"type": typeName(old)})
	}
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, invalid("merge target is a nil pointer", map[string]any{"type": typeName(old)})
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map && rv.IsNil() {
		rv.Set(reflect.MakeMap(rv.Type()))
	}
	return &mergeDest{value: rv}, nil
}

func (m *mergeDest) assign(key string, oldSet, newSet *entrySet) error {
	ne, inNew := newSet.entries[key]
	switch m.value.Kind() {
	case reflect.Map:
		k := reflect.ValueOf(key).Convert(m.value.Type().Key())
		if !inNew {
			m.value.SetMapIndex(k, reflect.Value{})
			return nil
		}
		m.value.SetMapIndex(k, ne.value)
		return nil
	case reflect.Struct:
		field := oldSet.entries[key].value
		if !field.IsValid() || !field.CanSet() {
			return invalid("configuration field cannot be set", map[string]any{"key": key})
		}
		field.Set(ne.value)
		return nil
	default:
		return invalid("unsupported merge target", map[string]any{"kind": m.value.Kind().String()})
	}
}
