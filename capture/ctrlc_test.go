package capture

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestCtrlCHandler builds a handler around its dispatch goroutine
// without calling signal.Notify, so tests can drive sigCh directly
// instead of depending on the process's real signal delivery.
func newTestCtrlCHandler() *CtrlCHandler {
	h := &CtrlCHandler{
		sigCh:  make(chan os.Signal, 1),
		stopCh: make(chan struct{}),
	}
	go h.run()
	return h
}

func TestCtrlCHandlerDeliversToCurrentListener(t *testing.T) {
	h := newTestCtrlCHandler()
	defer close(h.stopCh)

	done := make(chan struct{})
	h.Subscribe(func() { close(done) })

	h.sigCh <- os.Interrupt
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}
}

func TestCtrlCHandlerSubscribeReplacesPriorListener(t *testing.T) {
	h := newTestCtrlCHandler()
	defer close(h.stopCh)

	var firedFirst, firedSecond bool
	h.Subscribe(func() { firedFirst = true })
	h.Subscribe(func() { firedSecond = true })

	done := make(chan struct{})
	h.Subscribe(func() { firedSecond = true; close(done) })

	h.sigCh <- os.Interrupt
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement listener was not invoked")
	}
	require.False(t, firedFirst)
	require.True(t, firedSecond)
}

func TestCtrlCHandlerUnsubscribeClearsSlot(t *testing.T) {
	h := newTestCtrlCHandler()
	defer close(h.stopCh)

	fired := false
	h.Subscribe(func() { fired = true })
	h.Unsubscribe()

	h.mu.Lock()
	l := h.listener
	h.mu.Unlock()
	require.Nil(t, l)
	require.False(t, fired)
}

func TestCtrlCHandlerConsumesSlotOnFire(t *testing.T) {
	h := newTestCtrlCHandler()
	defer close(h.stopCh)

	done := make(chan struct{})
	h.Subscribe(func() { close(done) })
	h.sigCh <- os.Interrupt
	<-done

	time.Sleep(10 * time.Millisecond) // let run() clear the slot after delivery
	h.mu.Lock()
	l := h.listener
	h.mu.Unlock()
	require.Nil(t, l)
}
