package stream

import (
	"testing"

	"github.com/dartrt/dartrt/device"
	"github.com/dartrt/dartrt/mempool"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	pool := mempool.New(device.NewCPUAllocator())
	return New(pool)
}

func TestLaunchIsMonotonicPerStream(t *testing.T) {
	c := newTestController(t)
	first := c.Launch(0)
	second := c.Launch(0)
	if second <= first {
		t.Fatalf("second task id %d did not exceed first %d", second, first)
	}
	otherStreamFirst := c.Launch(1)
	if otherStreamFirst != 1 {
		t.Fatalf("stream 1's first task id = %d, want 1 (independent counter)", otherStreamFirst)
	}
}

func TestUpdateIsMonotonic(t *testing.T) {
	c := newTestController(t)
	c.Update(5, 0, 0)
	c.Update(3, 0, 0)
	if got := c.Status(0, 0); got != 5 {
		t.Fatalf("Status = %d, want 5 (update must not regress)", got)
	}
}

func TestRecordAndWaitEventRoundTrip(t *testing.T) {
	c := newTestController(t)
	buf, err := c.pool.Alloc(512, false, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	c.RecordEvent(1, 0, []mempool.MemStreamAddr{{MemStream: 0, Addr: buf.Addr}})
	c.WaitEvent(1, 0, 0)

	if got := c.Status(0, 0); got != 1 {
		t.Fatalf("Status after WaitEvent = %d, want 1", got)
	}
}

func TestSyncAllStreamsRaisesStatusToLatestLaunch(t *testing.T) {
	c := newTestController(t)
	c.Launch(0)
	c.Launch(0)
	c.SyncAllStreams()
	if got := c.Status(0, 0); got != 2 {
		t.Fatalf("Status after SyncAllStreams = %d, want 2", got)
	}
}
