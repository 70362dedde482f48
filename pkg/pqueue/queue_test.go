package pqueue

import "testing"

func TestQueue_PopAll(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		push     []float64
		expected []float64
	}{
		{
			name:     "asc_unbounded",
			push:     []float64{3, 1, 2},
			expected: []float64{1, 2, 3},
		},
		{
			name:     "desc_unbounded",
			opts:     []Option{WithOrderDesc()},
			push:     []float64{3, 1, 2},
			expected: []float64{3, 2, 1},
		},
		{
			name:     "desc_cap",
			opts:     []Option{WithOrderDesc(), WithCap(2)},
			push:     []float64{-10, -3, -7, -1, -20},
			expected: []float64{-1, -3},
		},
		{
			name:     "asc_cap",
			opts:     []Option{WithOrderAsc(), WithCap(3)},
			push:     []float64{5, 4, 3, 2, 1},
			expected: []float64{1, 2, 3},
		},
		{
			name:     "zero_cap",
			opts:     []Option{WithCap(0)},
			push:     []float64{1, 2},
			expected: []float64{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q := New[int](test.opts...)
			for i, p := range test.push {
				q.Push(i, p)
			}
			got := q.PopAll()
			if len(got) != len(test.expected) {
				t.Fatalf("PopAll length, got: %v, expected: %v", len(got), len(test.expected))
			}
			for i := range got {
				if got[i].Priority != test.expected[i] {
					t.Errorf("PopAll[%d], got: %v, expected: %v", i, got[i].Priority, test.expected[i])
				}
				if test.push[got[i].Value] != got[i].Priority {
					t.Errorf("PopAll[%d] value %d does not match priority %v", i, got[i].Value, got[i].Priority)
				}
			}
			if q.Len() != 0 {
				t.Errorf("Len after PopAll, got: %v, expected: 0", q.Len())
			}
		})
	}
}

func TestQueue_Worst(t *testing.T) {
	q := New[string](WithOrderDesc(), WithCap(2))
	if _, ok := q.Worst(); ok {
		t.Errorf("Worst on empty queue, got: ok, expected: none")
	}
	q.Push("a", 1)
	q.Push("b", 5)
	q.Push("c", 3)
	worst, ok := q.Worst()
	if !ok || worst.Value != "c" {
		t.Errorf("Worst, got: %v, expected: c", worst.Value)
	}
}
