package midiout

import (
	"errors"

	"github.com/Southclaws/fault/ftag"

	"go-seqout/midi"
)

var (
	// ErrDropped is returned when the pool has no free slot. The event is
	// lost; callers count it and carry on.
	ErrDropped = errors.New("event dropped: queue full")

	// ErrMalformed is returned when an event's payload does not match its kind.
	ErrMalformed = midi.ErrMalformed

	// ErrCapacity is returned by New when the configured capacity is unusable.
	ErrCapacity = errors.New("capacity must be a positive power of two")

	// ErrBadHandle is returned when a handle is not live or already queued.
	ErrBadHandle = errors.New("invalid slot handle")
)

// TagDropped marks errors caused by pool exhaustion.
const TagDropped ftag.Kind = "DROPPED"
