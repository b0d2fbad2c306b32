package domain

import (
	"errors"
	"testing"
)

func TestParseEntryID(t *testing.T) {
	ms, seq, err := ParseEntryID("1700000000000-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms != 1700000000000 || seq != 3 {
		t.Fatalf("unexpected components: %d %d", ms, seq)
	}

	for _, bad := range []string{"", "123", "a-1", "1-b", "-"} {
		if _, _, err := ParseEntryID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestEntryIDCompare(t *testing.T) {
	cases := []struct {
		a, b EntryID
		want int
	}{
		{"1-0", "1-0", 0},
		{"1-0", "1-1", -1},
		{"2-0", "1-9", 1},
		{"9-0", "10-0", -1},
		{"bogus", "1-0", -1},
		{"1-0", "bogus", 1},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
	if got := NewEntryID(12, 4); got != "12-4" {
		t.Fatalf("unexpected formatted id: %s", got)
	}
}

func TestJobErrorMessagesAndKinds(t *testing.T) {
	cases := []struct {
		kind error
		want string
	}{
		{ErrDuplicateJob, "Job with id 15 is already queued"},
		{ErrNotQueued, "job with id 15 is not queued"},
		{ErrIsRunning, "job with id 15 is running and can't be removed from the queue"},
	}
	for _, tc := range cases {
		err := error(NewJobError(tc.kind, 15))
		if err.Error() != tc.want {
			t.Errorf("unexpected message %q, want %q", err.Error(), tc.want)
		}
		if !errors.Is(err, tc.kind) {
			t.Errorf("expected errors.Is to match %v", tc.kind)
		}
		var jobErr *JobError
		if !errors.As(err, &jobErr) || jobErr.JobID != 15 {
			t.Errorf("expected JobError with id 15, got %#v", err)
		}
	}
}

func TestJobString(t *testing.T) {
	if got := (Job{ID: 15, Name: "x"}).String(); got != `{ id=15, name="x" }` {
		t.Fatalf("unexpected job string: %s", got)
	}
}
