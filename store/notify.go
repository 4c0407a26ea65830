package store

import (
	"fmt"
	"sync"

	"github.com/safing/itemstore/log"
)

// notifier delivers entity callbacks asynchronously and in order on a
// single goroutine. The queue is unbounded so that queueing never blocks
// while collection locks are held.
type notifier struct {
	lock    sync.Mutex
	pending []func()
	stopped bool

	wakeup chan struct{}
	done   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) queue(fn func()) {
	n.lock.Lock()
	if n.stopped {
		n.lock.Unlock()
		return
	}
	n.pending = append(n.pending, fn)
	n.lock.Unlock()

	select {
	case n.wakeup <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)

	for {
		n.lock.Lock()
		batch := n.pending
		n.pending = nil
		stopped := n.stopped
		n.lock.Unlock()

		for _, fn := range batch {
			n.call(fn)
		}

		if len(batch) == 0 {
			if stopped {
				return
			}
			<-n.wakeup
		}
	}
}

func (n *notifier) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("store: entity callback panicked: %s", fmt.Sprint(r))
		}
	}()
	fn()
}

// flush blocks until everything queued before the call was delivered.
func (n *notifier) flush() {
	delivered := make(chan struct{})
	n.lock.Lock()
	if n.stopped {
		n.lock.Unlock()
		return
	}
	n.pending = append(n.pending, func() { close(delivered) })
	n.lock.Unlock()

	select {
	case n.wakeup <- struct{}{}:
	default:
	}
	<-delivered
}

// stop delivers everything that is queued and stops the goroutine.
func (n *notifier) stop() {
	n.lock.Lock()
	if n.stopped {
		n.lock.Unlock()
		return
	}
	n.stopped = true
	n.lock.Unlock()

	select {
	case n.wakeup <- struct{}{}:
	default:
	}
	<-n.done
}
