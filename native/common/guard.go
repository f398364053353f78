package common

import (
	"errors"
	"sync"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call rejected")
)

// PauseView reports whether a named module has been halted by an operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSwitch is a runtime-togglable PauseView for operator control.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSwitch() *PauseSwitch {
	return &PauseSwitch{paused: make(map[string]bool)}
}

func (p *PauseSwitch) SetPaused(module string, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[module] = paused
}

func (p *PauseSwitch) IsPaused(module string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// CallLatch enforces one in-flight top-level call per engine. External
// collaborators invoked mid-transition can call back into the engine; the
// latch turns that into ErrReentrantCall instead of letting a nested
// transition mutate state underneath the running one.
type CallLatch struct {
	mu sync.Mutex
}

// Enter acquires the latch. The returned release function must run on every
// exit path of the guarded operation.
func (l *CallLatch) Enter() (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if !l.mu.TryLock() {
		return nil, ErrReentrantCall
	}
	return l.mu.Unlock, nil
}
