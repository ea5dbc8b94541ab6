package signaling

import (
	"context"
	"sync"
)

// pipeEnd is one side of an in-memory channel pair
type pipeEnd struct {
	id     string
	in     <-chan Message
	out    chan<- Message
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory channels. Messages sent on one are
// received on the other with an empty From set to the sender's ID, the way
// the relay stamps them. To is not interpreted. Closing either end closes
// both.
func Pipe(idA, idB string) (Channel, Channel) {
	ab := make(chan Message, 64)
	ba := make(chan Message, 64)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &pipeEnd{id: idA, in: ba, out: ab, closed: closed, once: once}
	b := &pipeEnd{id: idB, in: ab, out: ba, closed: closed, once: once}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = p.id
	}
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) (Message, error) {
	// Deliver what was sent before a close
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}

	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		close(p.closed)
	})
	return nil
}
