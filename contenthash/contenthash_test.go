package contenthash

import (
	"log"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

type point struct {
	X, Y int
	tag  string
}

type point2 struct {
	X, Y int
}

type node struct {
	Val  int
	Next *node
}

type labelled map[string]int

func (labelled) Name() string { return "labelled" }

type shape struct {
	Sides int
}

func (s shape) Name() string { return "shape" }

func TestSumDeterministic(t *testing.T) {
	v := map[string]any{"a": []int{1, 2, 3}, "b": point{X: 1, Y: 2}}
	if Sum(v) != Sum(v) {
		t.Fatalf("Sum not stable across calls")
	}
	w := map[string]any{"a": []int{1, 2, 3}, "b": point{X: 1, Y: 2}}
	if Sum(v) != Sum(w) {
		t.Fatalf("structurally equal maps hash differently")
	}
}

func TestSumMapOrderIndependent(t *testing.T) {
	a := map[int]string{}
	b := map[int]string{}
	for i := 0; i < 64; i++ {
		a[i] = string(rune('a' + i%26))
	}
	for i := 63; i >= 0; i-- {
		b[i] = string(rune('a' + i%26))
	}
	if Sum(a) != Sum(b) {
		t.Fatalf("map hash depends on insertion order")
	}
}

func TestSumSequenceOrderSensitive(t *testing.T) {
	if Sum([]int{1, 2}) == Sum([]int{2, 1}) {
		t.Fatalf("slice order must matter")
	}
	if Sum([2]int{1, 2}) == Sum([2]int{2, 1}) {
		t.Fatalf("array order must matter")
	}
}

func TestSumTypeNameFolded(t *testing.T) {
	if Sum(int32(1)) == Sum(int64(1)) {
		t.Fatalf("int32 and int64 collide")
	}
	if Sum(point{X: 1, Y: 2}) == Sum(point2{X: 1, Y: 2}) {
		t.Fatalf("same fields, different types collide")
	}
	if Sum([]int{1}) == Sum([1]int{1}) {
		t.Fatalf("slice and array collide")
	}
	if Sum("ab") == Sum([]byte("ab")) {
		t.Fatalf("string and []byte collide")
	}
}

type settings struct {
	limit int
	name  string
	cb    func()
}

func TestSumStructIncludesUnexported(t *testing.T) {
	a := point{X: 1, Y: 2, tag: "left"}
	b := point{X: 1, Y: 2, tag: "right"}
	if Sum(a) == Sum(b) {
		t.Fatalf("unexported fields must affect the hash")
	}
	if Sum(a) != Sum(point{X: 1, Y: 2, tag: "left"}) {
		t.Fatalf("equal structs hash differently")
	}

	if Sum(settings{limit: 1, name: "a"}) == Sum(settings{limit: 2, name: "b"}) {
		t.Fatalf("structs with only unexported fields collide")
	}
	if Sum(&settings{limit: 1}) != Sum(&settings{limit: 1}) {
		t.Fatalf("pointers to equal unexported structs hash differently")
	}
	cb := func() {}
	if Sum(settings{cb: cb}) != Sum(settings{cb: cb}) {
		t.Fatalf("unexported func field is not stable")
	}
	if Sum(settings{}) == Sum(settings{cb: cb}) {
		t.Fatalf("nil and non-nil unexported func collide")
	}
}

type stamped struct {
	at time.Time
}

func TestSumUnexportedOpaqueField(t *testing.T) {
	t1 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if Sum(stamped{at: t1}) != Sum(stamped{at: t1.Round(0)}) {
		t.Fatalf("equal times in unexported fields hash differently")
	}
	if Sum(stamped{at: t1}) == Sum(stamped{at: t1.Add(time.Second)}) {
		t.Fatalf("different times in unexported fields collide")
	}
}

func TestSumPointersByContent(t *testing.T) {
	a := &point{X: 5}
	b := &point{X: 5}
	if Sum(a) != Sum(b) {
		t.Fatalf("distinct pointers to equal structs must hash equal")
	}
	if Sum(a) == Sum(*a) {
		t.Fatalf("pointer and value share a hash")
	}
}

func TestSumStringsAreScalars(t *testing.T) {
	if Sum("abc") == Sum([]string{"a", "b", "c"}) {
		t.Fatalf("string hashed like a sequence")
	}
}

func TestSumCycleTerminates(t *testing.T) {
	n := &node{Val: 1}
	n.Next = n
	m := &node{Val: 1}
	m.Next = m
	if Sum(n) != Sum(m) {
		t.Fatalf("isomorphic cycles hash differently")
	}

	s := []any{nil}
	s[0] = s
	_ = Sum(s)
}

func TestSumLogHandlesByName(t *testing.T) {
	a := zap.NewNop().Named("svc")
	b := zap.NewExample().Named("svc")
	if Sum(a) != Sum(b) {
		t.Fatalf("zap loggers with same name must hash equal")
	}
	if Sum(a) == Sum(zap.NewNop().Named("other")) {
		t.Fatalf("zap loggers with different names collide")
	}

	l1 := log.New(os.Stdout, "p:", 0)
	l2 := log.New(os.Stderr, "p:", log.LstdFlags)
	if Sum(l1) != Sum(l2) {
		t.Fatalf("std loggers with same prefix must hash equal")
	}

	if Sum(slog.Default()) != Sum(slog.New(slog.NewTextHandler(os.Stdout, nil))) {
		t.Fatalf("slog loggers must reduce to their type")
	}
}

func TestSumNamedTags(t *testing.T) {
	m := labelled{"a": 1}
	plain := map[string]int{"a": 1}
	if Sum(m) == Sum(plain) {
		t.Fatalf("named map must carry its tag")
	}
	if Sum(shape{Sides: 3}) != Sum(shape{Sides: 3}) {
		t.Fatalf("named struct unstable")
	}
}

func TestSumOpaqueStructs(t *testing.T) {
	t1 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if Sum(t1) != Sum(t2) {
		t.Fatalf("equal times hash differently")
	}
	if Sum(t1) == Sum(t1.Add(time.Second)) {
		t.Fatalf("different times collide")
	}
	if Sum(big.NewInt(7)) == Sum(big.NewInt(8)) {
		t.Fatalf("different big ints collide")
	}
}

func TestSumFloats(t *testing.T) {
	negZero := 0.0
	negZero = -negZero
	if Sum(0.0) != Sum(negZero) {
		t.Fatalf("+0 and -0 must hash equal")
	}
}

func TestSumFuncsByName(t *testing.T) {
	if Sum(TestSumFloats) == Sum(TestSumFuncsByName) {
		t.Fatalf("different functions collide")
	}
	if Sum(TestSumFloats) != Sum(TestSumFloats) {
		t.Fatalf("same function unstable")
	}
}

func TestSumArgs(t *testing.T) {
	if SumArgs(1, "a") != Sum([]any{1, "a"}) {
		t.Fatalf("SumArgs must equal Sum of []any")
	}
	if SumArgs() != Sum([]any{}) {
		t.Fatalf("empty SumArgs must equal Sum of empty []any")
	}
	if SumArgs(1, 2) == SumArgs(2, 1) {
		t.Fatalf("argument order must matter")
	}
}
