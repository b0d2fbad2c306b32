// Package jobs implements the admission, ordering and removal protocol of the job queue
// on top of a domain.Stream.
//
// The oldest pending entry (the head) is treated as running: it is either being processed
// or about to be claimed, so it can never be removed individually. This is a convention
// enforced here, not a lease held by the store. Clear is the administrative override that
// drops everything, head included.
//
// Controllers issue several store calls per operation without locking, so two races remain:
// concurrent admissions of the same id may both pass the duplicate check unless atomic
// admission is enabled, and a removal decides on a head that may already be stale.
package jobs
