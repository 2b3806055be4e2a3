package canbus

import (
	"log"
	"sync"

	"github.com/Workiva/go-datastructures/queue"

	ring "github.com/HeronMkII/obc/queue"
)

// Bus is the CAN controller contract: transmit one frame to a subsystem.
// Received frames come back through Router.Receive.
type Bus interface {
	Send(dest Destination, msg Message) error
}

const txQueueHint = 10

// Router owns the per-destination transmit FIFOs and the shared receive
// queue. Transmit FIFOs drain one frame per send-next call, mirroring the
// one-mailbox-at-a-time hardware. The receive queue supports front
// re-enqueue for responses the current consumer cannot take yet.
type Router struct {
	profile Profile
	bus     Bus

	epsTX *queue.Queue
	payTX *queue.Queue

	rxMu sync.Mutex
	rx   ring.Queue

	// Verbose frame logging for bench runs.
	PrintMsgs bool
}

func NewRouter(profile Profile, bus Bus) *Router {
	return &Router{
		profile: profile,
		bus:     bus,
		epsTX:   queue.New(txQueueHint),
		payTX:   queue.New(txQueueHint),
	}
}

func (r *Router) Profile() Profile { return r.profile }

// EnqueueEPS queues a field request to EPS.
func (r *Router) EnqueueEPS(opcode, field uint8, data uint32) error {
	return r.epsTX.Put(NewRequest(opcode, field, data))
}

// EnqueuePAY queues a field request to PAY.
func (r *Router) EnqueuePAY(opcode, field uint8, data uint32) error {
	return r.payTX.Put(NewRequest(opcode, field, data))
}

// EnqueueRaw queues a verbatim 8-byte frame, as carried by the ground
// passthrough commands.
func (r *Router) EnqueueRaw(dest Destination, data1, data2 uint32) error {
	msg := NewRawMessage(data1, data2)
	if dest == DestEPS {
		return r.epsTX.Put(msg)
	}
	return r.payTX.Put(msg)
}

// SendNextEPS transmits one pending EPS frame, if any.
func (r *Router) SendNextEPS() {
	r.sendNext(DestEPS, r.epsTX)
}

// SendNextPAY transmits one pending PAY frame, if any.
func (r *Router) SendNextPAY() {
	r.sendNext(DestPAY, r.payTX)
}

func (r *Router) sendNext(dest Destination, q *queue.Queue) {
	if q.Empty() {
		return
	}
	items, err := q.Get(1)
	if err != nil || len(items) == 0 {
		return
	}
	msg := items[0].(Message)

	if r.PrintMsgs {
		log.Printf("canbus: TX (%s): % X", dest, msg[:])
	}
	if err := r.bus.Send(dest, msg); err != nil {
		log.Printf("canbus: send to %s failed: %s", dest, err)
	}
}

// Receive queues a frame arriving from a subsystem. Called from the CAN
// driver callback; a full queue drops the frame.
func (r *Router) Receive(msg Message) {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	if !r.rx.Enqueue(ring.Entry(msg)) {
		log.Printf("canbus: RX queue full, dropping % X", msg[:])
	}
}

// TakeRx pops the oldest received frame.
func (r *Router) TakeRx() (Message, bool) {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	entry, ok := r.rx.Dequeue()
	return Message(entry), ok
}

// RequeueFront puts a frame back at the head of the receive queue,
// preserving order for a later consumer cycle.
func (r *Router) RequeueFront(msg Message) {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	if !r.rx.EnqueueFront(ring.Entry(msg)) {
		log.Printf("canbus: RX queue full, dropping re-enqueued % X", msg[:])
	}
}

// RxEmpty reports whether any received frame is waiting.
func (r *Router) RxEmpty() bool {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	return r.rx.Empty()
}
