package memocache

import (
	"fmt"
	"maps"
	"reflect"
)

// BaseStater is implemented by hosts that define their own serializable
// state.
type BaseStater interface {
	BaseState() any
}

var propertyCacheType = reflect.TypeFor[PropertyCache]()

// StateWithoutCache returns the serializable state of host with its
// property cache left out, for use in custom encoders:
//
//	func (r *Report) MarshalCBOR() ([]byte, error) {
//		st, err := memocache.StateWithoutCache(r)
//		...
//	}
//
// If host implements BaseStater, that state is used; a map[string]any state
// is copied without its "PropertyCache" entry. Otherwise the exported fields
// of the host struct are returned, minus any PropertyCache. Anything else is
// a *StateError.
func StateWithoutCache(host any) (any, error) {
	if bs, ok := host.(BaseStater); ok {
		st := bs.BaseState()
		if m, ok := st.(map[string]any); ok {
			if _, has := m["PropertyCache"]; has {
				m = maps.Clone(m)
				delete(m, "PropertyCache")
			}
			return m, nil
		}
		return st, nil
	}

	v := reflect.ValueOf(host)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, &StateError{Host: fmt.Sprintf("%T", host)}
	}
	t := v.Type()
	st := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Type == propertyCacheType || f.Type == reflect.PointerTo(propertyCacheType) {
			continue
		}
		st[f.Name] = v.Field(i).Interface()
	}
	return st, nil
}
