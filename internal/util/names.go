package util

import (
	"reflect"
	"runtime"
	"strings"
)

// FuncName returns "pkg.Func" for a function value, dropping the import path
// and the "-fm" suffix the runtime adds to method values.
// Non-function values yield "".
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// TypeName is the runtime name of t with pointer indirections removed,
// e.g. "*memocache.Widget" -> "memocache.Widget".
func TypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
