package mqtt

import "testing"

func msg(n byte) queuedMsg {
	return queuedMsg{topic: Topic, payload: []byte{n}}
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxPushAndDrain(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.push(msg(byte(i)))
	}
	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from second drain, got %d items", len(got))
	}
}

func TestOutboxOverflowKeepsNewest(t *testing.T) {
	o := newOutbox(5)
	// Push 0..7; the oldest three are overwritten.
	for i := 0; i < 8; i++ {
		o.push(msg(byte(i)))
	}
	if o.dropped != 3 {
		t.Errorf("dropped: got %d, want 3", o.dropped)
	}
	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
	if o.dropped != 0 {
		t.Error("drain should reset the dropped counter")
	}
}

func TestOutboxReuseAfterDrain(t *testing.T) {
	o := newOutbox(4)
	o.push(msg(1))
	o.push(msg(2))
	o.drain()

	for i := byte(10); i < 13; i++ {
		o.push(msg(i))
	}
	got := o.drain()
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i, m := range got {
		if want := byte(10 + i); m.payload[0] != want {
			t.Errorf("item %d: expected %d, got %d", i, want, m.payload[0])
		}
	}
}

func TestOutboxLen(t *testing.T) {
	o := newOutbox(2)
	if o.len() != 0 {
		t.Errorf("expected len 0, got %d", o.len())
	}
	o.push(msg(0))
	o.push(msg(1))
	o.push(msg(2))
	if o.len() != 2 {
		t.Errorf("expected len capped at 2, got %d", o.len())
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.push(msg(1))
	o.push(msg(2))
	got := o.drain()
	if len(got) != 1 || got[0].payload[0] != 2 {
		t.Errorf("expected only the newest message, got %+v", got)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(3)
	o.push(queuedMsg{topic: TopicSystem, payload: []byte(`{"x":1}`), qos: 1, retained: true})
	got := o.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != TopicSystem || string(m.payload) != `{"x":1}` || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
