package offset

import "testing"

func TestUnitOfSentinel(t *testing.T) {
	if v := Of(-1001); !v.IsMissing() {
		t.Fatal("expected Missing")
	}
	v := Of(42)
	n, ok := v.Int64()
	if !ok || n != 42 {
		t.Fatalf("%+v", v)
	}
}

func TestUnitToRawRoundtrip(t *testing.T) {
	for _, n := range []int64{0, 1, 100, 1 << 40} {
		v := Of(n)
		if got := v.ToRaw(); got != n {
			t.Fatalf("roundtrip: got %d want %d", got, n)
		}
	}
}

func TestUnitValidPanicsOnNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Valid(-1)
}

func TestUnitPartitionSampleLag(t *testing.T) {
	cases := []struct {
		name                     string
		consumer, earliest, high Value
		want                     int64
	}{
		{"consumer valid", Valid(10), Valid(0), Valid(15), 5},
		{"consumer missing", Missing, Valid(3), Valid(15), 12},
		{"consumer missing, high missing", Missing, Valid(3), Missing, 0},
		{"all missing", Missing, Missing, Missing, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewPartitionSample(0, c.consumer, c.earliest, c.high)
			if s.Lag != c.want {
				t.Fatalf("got %d want %d", s.Lag, c.want)
			}
		})
	}
}
