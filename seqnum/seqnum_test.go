package seqnum

import "testing"

func TestCounterNeverZero(t *testing.T) {
	var c Counter
	c.Init()
	if c.Get() != 1 {
		t.Fatalf("Init: got %d want 1", c.Get())
	}
	for i := 0; i < 70000; i++ {
		v := c.Inc()
		if v == 0 {
			t.Fatalf("Inc produced 0 at iteration %d", i)
		}
		if v < 1 || v > 65535 {
			t.Fatalf("Inc produced out-of-range value %d", v)
		}
	}
}

func TestCounterWraps(t *testing.T) {
	var c Counter
	c.Init()
	c.val = 65535
	v := c.Inc()
	if v != 1 {
		t.Fatalf("wrap: got %d want 1", v)
	}
}

func TestCmp(t *testing.T) {
	cases := []struct {
		a, b Value
		want int
	}{
		{1, 2, -1},
		{2, 1, 1},
		{5, 5, 0},
		{65535, 1, 1},
	}
	for _, c := range cases {
		if got := Cmp(c.a, c.b); got != c.want {
			t.Errorf("Cmp(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestGetThenInc(t *testing.T) {
	var c Counter
	c.Init()
	first := c.GetThenInc()
	if first != 1 {
		t.Fatalf("first GetThenInc = %d want 1", first)
	}
	if c.Get() != 2 {
		t.Fatalf("after GetThenInc counter = %d want 2", c.Get())
	}
}
