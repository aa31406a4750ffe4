package rgbd

import (
	"errors"
	"sync"
)

// CallbackProducer republishes frames pushed by the device SDK from its own
// delivery thread. It never owns a goroutine.
type CallbackProducer struct {
	notifier Notifier

	// held for reading while a callback publishes, for writing when toggling active
	locker sync.RWMutex
	active bool
}

func NewCallbackProducer(notifier Notifier) *CallbackProducer {
	return &CallbackProducer{notifier: notifier}
}

func (p *CallbackProducer) Start(publish PublishFunc) error {
	p.locker.Lock()
	if p.active {
		p.locker.Unlock()
		return errors.New("callback producer already started")
	}
	p.active = true
	p.locker.Unlock()

	p.notifier.SetListener(func(frame RawFrame) {
		p.locker.RLock()
		defer p.locker.RUnlock()

		if !p.active {
			return
		}
		if err := publish(frame); err != nil {
			l.Warn().Println("publish", frame.Modality, "frame:", err)
		}
	})

	return nil
}

func (p *CallbackProducer) Stop() error {
	// waits for in-flight callbacks to leave publish
	p.locker.Lock()
	wasActive := p.active
	p.active = false
	p.locker.Unlock()

	if wasActive {
		p.notifier.SetListener(nil)
	}
	return nil
}
