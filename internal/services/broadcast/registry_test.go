package broadcast

import (
	"sync"
	"testing"
	"time"
)

func TestRegistryNextID(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if got := r.NextID(); got != 1 {
		t.Fatalf("NextID on empty registry = %d, want 1", got)
	}
	r.Create(1, Job{UserID: 7})
	r.Create(5, Job{UserID: 7})
	if got := r.NextID(); got != 6 {
		t.Fatalf("NextID = %d, want 6", got)
	}
	// Deleting a lower id must not recycle it below the max.
	r.Create(6, Job{UserID: 7, Status: StatusCompleted, StartTime: time.Now().Add(-time.Hour)})
	r.Sweep(time.Minute)
	if got := r.NextID(); got != 6 {
		t.Fatalf("NextID after sweep = %d, want 6", got)
	}
}

func TestRegistryProgressMonotonic(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Create(1, Job{UserID: 7, PlannedCount: 10, Status: StatusRunning})

	r.UpdateProgress(1, 4)
	r.UpdateProgress(1, 2) // stale write must not regress
	j, _ := r.Get(1)
	if j.SentChats != 4 {
		t.Fatalf("SentChats = %d, want 4", j.SentChats)
	}

	r.UpdateProgress(1, 25) // capped at planned
	j, _ = r.Get(1)
	if j.SentChats != 10 {
		t.Fatalf("SentChats = %d, want planned cap 10", j.SentChats)
	}
}

func TestRegistryProgressConcurrent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Create(1, Job{UserID: 7, PlannedCount: 1000, Status: StatusRunning})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				r.UpdateProgress(1, base*100+i)
			}
		}(w)
	}
	wg.Wait()

	j, _ := r.Get(1)
	if j.SentChats != 800 {
		t.Fatalf("SentChats = %d, want max observed 800", j.SentChats)
	}
}

func TestRegistryTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"running to paused", StatusRunning, StatusPaused, true},
		{"paused to running", StatusPaused, StatusRunning, true},
		{"running to cancelled", StatusRunning, StatusCancelled, true},
		{"cancelled to stopped", StatusCancelled, StatusStopped, true},
		{"cancelled to running", StatusCancelled, StatusRunning, false},
		{"completed sticky", StatusCompleted, StatusRunning, false},
		{"stopped sticky", StatusStopped, StatusCancelled, false},
		{"error sticky", StatusError, StatusRunning, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Create(1, Job{UserID: 7, Status: tt.from})
			if got := r.SetStatus(1, tt.to); got != tt.ok {
				t.Fatalf("SetStatus(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestRegistryMissingJobSafe(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if r.SetStatus(42, StatusPaused) {
		t.Fatal("SetStatus on missing job must refuse")
	}
	r.UpdateProgress(42, 3)
	r.MarkError(42, "boom", ErrKindSendFailed)
	if _, ok := r.Get(42); ok {
		t.Fatal("missing job must stay missing")
	}
	if _, ok := r.StatusOf(42); ok {
		t.Fatal("StatusOf on missing job must report ok=false")
	}
}

func TestRegistrySweep(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	old := time.Now().Add(-3 * time.Hour)
	r.Create(1, Job{UserID: 7, Status: StatusCompleted, StartTime: old})
	r.Create(2, Job{UserID: 7, Status: StatusRunning, StartTime: old})
	r.Create(3, Job{UserID: 7, Status: StatusStopped, StartTime: time.Now()})
	r.Create(4, Job{UserID: 7, Status: StatusError}) // no start time at all

	removed := r.Sweep(2 * time.Hour)
	if removed != 2 {
		t.Fatalf("Sweep removed %d, want 2", removed)
	}
	if _, ok := r.Get(1); ok {
		t.Fatal("old terminal job must be swept")
	}
	if _, ok := r.Get(2); !ok {
		t.Fatal("running job must survive sweep regardless of age")
	}
	if _, ok := r.Get(3); !ok {
		t.Fatal("young terminal job must survive sweep")
	}
	if _, ok := r.Get(4); ok {
		t.Fatal("terminal job without start time must be swept unconditionally")
	}
}

func TestRegistryListGroup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Create(1, Job{UserID: 7, GroupID: 3})
	r.Create(2, Job{UserID: 7, GroupID: 3})
	r.Create(3, Job{UserID: 7, GroupID: 0})
	r.Create(4, Job{UserID: 8, GroupID: 3})

	got := r.ListGroup(7, 3)
	if len(got) != 2 {
		t.Fatalf("ListGroup = %d jobs, want 2", len(got))
	}
	if grp := r.ListGroup(7, 0); len(grp) != 0 {
		t.Fatal("group id 0 must never match as a group")
	}
}

func TestMarkErrorCapturesDetail(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Create(1, Job{UserID: 7, Status: StatusRunning})
	r.MarkError(1, "account is not connected", ErrKindDisconnected)
	j, _ := r.Get(1)
	if j.Status != StatusError || j.ErrorKind != ErrKindDisconnected || j.ErrorMessage == "" {
		t.Fatalf("MarkError result = %+v", j)
	}
	// Error is sticky against a late scheduler write.
	r.MarkError(1, "other", ErrKindSendFailed)
	j, _ = r.Get(1)
	if j.ErrorKind != ErrKindDisconnected {
		t.Fatal("first recorded error must win")
	}
}
