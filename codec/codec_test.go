package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type report struct {
	ID     string
	Scores []float64
	At     time.Time
}

func sample() report {
	return report{ID: "r1", Scores: []float64{1.5, 2.5}, At: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestStructCodecsRoundTrip(t *testing.T) {
	codecs := map[string]Codec[report]{
		"json":    JSON[report]{},
		"cbor":    MustCBOR[report](false),
		"cbordet": MustCBOR[report](true),
		"msgpack": Msgpack[report]{},
		"msgdet":  Msgpack[report]{Deterministic: true},
		"default": Default[report](),
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, c, sample())
			if diff := cmp.Diff(sample(), got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeterministicCBORStableForMaps(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	a := map[string]int{"a": 1, "b": 2, "c": 3}
	first, err := c.Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, _ := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
		if string(b) != string(first) {
			t.Fatalf("deterministic encoding differs between runs")
		}
	}
}

func TestCBORDecodesSignedInts(t *testing.T) {
	c := MustCBOR[[]any](true)
	got := roundTrip(t, c, []any{3, "x"})
	if _, ok := got[0].(int64); !ok {
		t.Fatalf("want int64, got %T", got[0])
	}
}

func TestMsgpackDeterministicAndLoose(t *testing.T) {
	c := Msgpack[map[string]any]{Deterministic: true}
	first, err := c.Encode(map[string]any{"a": 1, "b": "x", "c": 2.5})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, _ := c.Encode(map[string]any{"c": 2.5, "b": "x", "a": 1})
		if string(b) != string(first) {
			t.Fatalf("deterministic encoding differs between runs")
		}
	}

	got, err := c.Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := got["a"].(int64); !ok {
		t.Fatalf("want int64, got %T", got["a"])
	}
	if _, ok := got["c"].(float64); !ok {
		t.Fatalf("want float64, got %T", got["c"])
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	got := roundTrip(t, c, wrapperspb.String("hello"))
	if !proto.Equal(got, wrapperspb.String("hello")) {
		t.Fatalf("got %v", got)
	}
}

func TestRawCodecs(t *testing.T) {
	in := []byte("abc")
	out := roundTrip[[]byte](t, Bytes{}, in)
	if string(out) != "abc" {
		t.Fatalf("Bytes round trip: %q", out)
	}
	out[0] = 'z'
	if in[0] != 'a' {
		t.Fatalf("Bytes.Decode must copy")
	}
	if s := roundTrip[string](t, String{}, "héllo"); s != "héllo" {
		t.Fatalf("String round trip: %q", s)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
	if s, err := c.Decode([]byte("1234")); err != nil || s != "1234" {
		t.Fatalf("Decode within limit: %q %v", s, err)
	}
	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Decode(make([]byte, 1<<16)); err != nil {
		t.Fatalf("MaxDecode=0 must disable the check: %v", err)
	}
}
