package rgbd

import (
	"errors"
	"sync"
	"time"
)

const (
	loopBackoffMin = 10 * time.Millisecond
	loopBackoffMax = time.Second
)

// LoopProducer owns a goroutine that blocks on the device wait primitive and
// drains exactly one ready stream per iteration.
type LoopProducer struct {
	poller  Poller
	streams []Modality

	locker  sync.Locker
	started bool
	done    chan struct{}

	runningLocker sync.Locker
	running       bool
}

func NewLoopProducer(poller Poller, streams ...Modality) *LoopProducer {
	return &LoopProducer{
		poller:  poller,
		streams: streams,

		locker:        &sync.Mutex{},
		runningLocker: &sync.Mutex{},
	}
}

func (p *LoopProducer) Start(publish PublishFunc) error {
	p.locker.Lock()
	defer p.locker.Unlock()

	if p.started {
		return errors.New("loop producer already started")
	}
	if len(p.streams) == 0 {
		return errors.New("loop producer has no stream to wait on")
	}

	p.setRunning(true)
	p.started = true
	p.done = make(chan struct{})

	go p.run(publish)

	return nil
}

func (p *LoopProducer) Stop() error {
	p.locker.Lock()
	defer p.locker.Unlock()

	if !p.started {
		return nil
	}

	p.setRunning(false)
	if i, ok := p.poller.(Interrupter); ok {
		i.Interrupt()
	}
	<-p.done
	p.started = false

	return nil
}

func (p *LoopProducer) setRunning(running bool) {
	p.runningLocker.Lock()
	p.running = running
	p.runningLocker.Unlock()
}

func (p *LoopProducer) isRunning() bool {
	p.runningLocker.Lock()
	defer p.runningLocker.Unlock()
	return p.running
}

func (p *LoopProducer) run(publish PublishFunc) {
	defer close(p.done)

	l.Verbose().Println("acquisition loop started on", p.streams)

	failures := 0
	for p.isRunning() {
		m, err := p.poller.WaitForAnyStream(p.streams)
		if err != nil {
			if !p.isRunning() {
				break
			}
			// left over from an earlier Stop
			if errors.Is(err, ErrInterrupted) {
				continue
			}
			failures++
			l.Warn().Println("wait for stream:", err)
			time.Sleep(backoff(failures))
			continue
		}
		failures = 0

		frame, err := p.poller.ReadFrame(m)
		if err != nil {
			l.Warn().Println("read", m, "frame:", err)
			continue
		}

		if err := publish(frame); err != nil {
			l.Warn().Println("publish", m, "frame:", err)
		}
	}

	l.Verbose().Println("acquisition loop stopped")
}

func backoff(failures int) time.Duration {
	d := loopBackoffMin
	for i := 1; i < failures && d < loopBackoffMax; i++ {
		d *= 2
	}
	if d > loopBackoffMax {
		d = loopBackoffMax
	}
	return d
}
