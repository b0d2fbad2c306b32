package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EntryID is the store-assigned identifier of a stream entry, in the form "<millis>-<seq>".
// Entry ids are totally ordered and distinct from job ids.
type EntryID string

// ParseEntryID splits an entry id into its time and sequence components.
func ParseEntryID(s string) (ms uint64, seq uint64, err error) {
	head, tail, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid entry id %q", s)
	}
	ms, err = strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid entry id %q: %w", s, err)
	}
	seq, err = strconv.ParseUint(tail, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid entry id %q: %w", s, err)
	}
	return ms, seq, nil
}

// NewEntryID formats an entry id from its components.
func NewEntryID(ms, seq uint64) EntryID {
	return EntryID(strconv.FormatUint(ms, 10) + "-" + strconv.FormatUint(seq, 10))
}

// Compare orders two entry ids numerically. Unparseable ids sort before valid ones.
func (id EntryID) Compare(other EntryID) int {
	ams, aseq, aerr := ParseEntryID(string(id))
	bms, bseq, berr := ParseEntryID(string(other))
	switch {
	case aerr != nil && berr != nil:
		return strings.Compare(string(id), string(other))
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	}
	switch {
	case ams < bms:
		return -1
	case ams > bms:
		return 1
	case aseq < bseq:
		return -1
	case aseq > bseq:
		return 1
	}
	return 0
}

// Entry is a job as stored in the stream.
type Entry struct {
	ID  EntryID
	Job Job

	// Missing is set on group deliveries whose payload is gone (deleted or trimmed while pending)
	// or cannot be decoded.
	Missing bool
}
