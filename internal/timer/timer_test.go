package timer

import (
	"testing"
	"time"
)

func TestSchedule_FiresOnlyAfterDelayElapsed(t *testing.T) {
	now := time.Unix(0, 0)
	svc := NewWithClock(func() time.Time { return now })

	fired := false
	svc.Schedule("NAK", 10*time.Second, func() { fired = true })

	svc.Tick()
	if fired {
		t.Fatalf("fired before delay elapsed")
	}

	now = now.Add(10 * time.Second)
	svc.Tick()
	if !fired {
		t.Fatalf("expected fire once delay elapsed")
	}
}

func TestSchedule_ReplacesPriorTimerForSameKey(t *testing.T) {
	now := time.Unix(0, 0)
	svc := NewWithClock(func() time.Time { return now })

	firstFired := false
	secondFired := false
	svc.Schedule("NAK", 5*time.Second, func() { firstFired = true })
	svc.Schedule("NAK", 5*time.Second, func() { secondFired = true })

	now = now.Add(5 * time.Second)
	svc.Tick()

	if firstFired {
		t.Fatalf("replaced timer must not fire")
	}
	if !secondFired {
		t.Fatalf("replacement timer should have fired")
	}
}

func TestCancel_PreventsFire(t *testing.T) {
	now := time.Unix(0, 0)
	svc := NewWithClock(func() time.Time { return now })

	fired := false
	svc.Schedule("INACTIVITY", time.Second, func() { fired = true })
	svc.Cancel("INACTIVITY")

	now = now.Add(time.Second)
	svc.Tick()
	if fired {
		t.Fatalf("cancelled timer fired")
	}
}

func TestCancel_IdempotentWhenAbsent(t *testing.T) {
	svc := New()
	svc.Cancel("does-not-exist")
	svc.Cancel("does-not-exist")
}

func TestTick_ReentrantRescheduleDoesNotFireTwiceInSameTick(t *testing.T) {
	now := time.Unix(0, 0)
	svc := NewWithClock(func() time.Time { return now })

	fireCount := 0
	var onFire func()
	onFire = func() {
		fireCount++
		svc.Schedule("NAK", 0, onFire) // reschedule for "immediately", still must not refire this tick
	}
	svc.Schedule("NAK", 0, onFire)

	svc.Tick()
	if fireCount != 1 {
		t.Fatalf("fireCount = %d, want 1 (reentrant reschedule must not fire within the same tick)", fireCount)
	}

	svc.Tick()
	if fireCount != 2 {
		t.Fatalf("fireCount after second tick = %d, want 2", fireCount)
	}
}

func TestTick_FiresInScheduledOrder(t *testing.T) {
	now := time.Unix(0, 0)
	svc := NewWithClock(func() time.Time { return now })

	var order []string
	svc.Schedule("B", 2*time.Second, func() { order = append(order, "B") })
	svc.Schedule("A", 1*time.Second, func() { order = append(order, "A") })

	now = now.Add(5 * time.Second)
	svc.Tick()

	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("fire order = %v, want [A B]", order)
	}
}

func TestPending(t *testing.T) {
	svc := New()
	if svc.Pending("NAK") {
		t.Fatalf("expected no pending timer on a fresh service")
	}
	svc.Schedule("NAK", time.Second, func() {})
	if !svc.Pending("NAK") {
		t.Fatalf("expected pending timer after Schedule")
	}
	svc.Cancel("NAK")
	if svc.Pending("NAK") {
		t.Fatalf("expected no pending timer after Cancel")
	}
}
