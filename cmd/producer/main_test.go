package main

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("JOBSTREAM_STREAM_BACKEND", "memory")
	t.Setenv("JOBSTREAM_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestAdmitPrintsEntryID(t *testing.T) {
	out, err := run(t, "admit", "--id", "15", "--name", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "-") {
		t.Fatalf("expected an entry id, got %q", out)
	}
}

func TestAdmitRequiresID(t *testing.T) {
	if _, err := run(t, "admit", "--name", "x"); err == nil {
		t.Fatal("expected missing --id to fail")
	}
}

func TestListAndCountOnEmptyQueue(t *testing.T) {
	if out, err := run(t, "list"); err != nil || out != "[]" {
		t.Fatalf("list: got %q %v", out, err)
	}
	if out, err := run(t, "count"); err != nil || out != "0" {
		t.Fatalf("count: got %q %v", out, err)
	}
}

func TestRemove(t *testing.T) {
	if _, err := run(t, "remove", "abc"); err == nil {
		t.Fatal("expected invalid id to fail")
	}
	_, err := run(t, "remove", "15")
	if err == nil || !strings.Contains(err.Error(), "job with id 15 is not queued") {
		t.Fatalf("expected not queued error, got %v", err)
	}
}

func TestClear(t *testing.T) {
	if _, err := run(t, "clear"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
