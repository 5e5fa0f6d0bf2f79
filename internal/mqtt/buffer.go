package mqtt

import "log"

// queuedMsg is a serialized message held until the broker is reachable.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO that holds messages while disconnected.
// When full, the oldest message is overwritten.
// Not safe for concurrent use; caller must synchronize.
type outbox struct {
	buf     []queuedMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{buf: make([]queuedMsg, capacity)}
}

func (o *outbox) push(msg queuedMsg) {
	capacity := len(o.buf)
	if o.count == capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", capacity)
		}
		o.dropped++
	} else {
		o.count++
	}
	o.buf[o.head] = msg
	o.head = (o.head + 1) % capacity
}

// drain returns queued messages oldest first and empties the outbox.
func (o *outbox) drain() []queuedMsg {
	if o.count == 0 {
		return nil
	}
	capacity := len(o.buf)
	out := make([]queuedMsg, o.count)
	start := (o.head - o.count + capacity) % capacity
	for i := range out {
		out[i] = o.buf[(start+i)%capacity]
	}
	if o.dropped > 0 {
		log.Printf("mqtt: replaying %d queued messages (%d dropped)", len(out), o.dropped)
	}
	o.count = 0
	o.head = 0
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
