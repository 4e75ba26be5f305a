package gateway

import "testing"

func TestReplayBuffer_After(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got, complete := rb.After(6)
	if !complete {
		t.Fatal("expected complete gap")
	}
	if len(got) != 4 {
		t.Fatalf("After(6): expected 4, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 7; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// push 8, the first 3 are evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}
	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	got, complete := rb.After(3)
	if !complete || len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Fatalf("After(3) = %d entries complete=%v", len(got), complete)
	}

	if _, complete := rb.After(1); complete {
		t.Error("seq 2 and 3 were evicted, gap should be incomplete")
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	got, complete := rb.After(0)
	if len(got) != 0 || !complete {
		t.Fatalf("empty buffer: got %d entries complete=%v", len(got), complete)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'

	got, _ := rb.After(0)
	if string(got[0].Data) != "abc" {
		t.Errorf("buffer kept caller's slice: %q", got[0].Data)
	}
}
