package deliberation

// Buffer is the append-only, arrival-ordered store of every event received
// for one session. Events are immutable once buffered; the buffer is
// discarded wholesale when the session view closes.
type Buffer struct {
	events []Event
	seen   map[string]struct{}
	logger Logger
}

// NewBuffer returns an empty buffer. A nil logger disables diagnostics.
func NewBuffer(logger Logger) *Buffer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Buffer{
		seen:   map[string]struct{}{},
		logger: logger,
	}
}

// Append adds an event to the buffer and returns it with its arrival
// sequence assigned. Re-appending a content-identical event (a reconnect
// replay) is a no-op; the second return is false and the event is discarded.
func (b *Buffer) Append(ev Event) (Event, bool) {
	digest := ev.Digest()
	if _, dup := b.seen[digest]; dup {
		b.logger.Printf("buffer: duplicate %s event ignored", ev.WireType)
		return Event{}, false
	}
	b.seen[digest] = struct{}{}
	ev.Seq = len(b.events)
	b.events = append(b.events, ev)
	return ev, true
}

// AppendRaw parses a wire frame and appends it. Malformed frames (undecodable
// JSON or a missing event_type) are logged and skipped; the stream keeps
// flowing. Frames with an unrecognized event_type are still buffered as
// KindUnknown so the transcript stays complete.
func (b *Buffer) AppendRaw(raw []byte) (Event, bool) {
	ev, err := ParseEvent(raw)
	if err != nil {
		b.logger.Printf("buffer: dropping malformed event: %v", err)
		return Event{}, false
	}
	return b.Append(ev)
}

// Snapshot returns the ordered event list. The returned slice is a copy;
// mutating it cannot corrupt the buffer.
func (b *Buffer) Snapshot() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Last returns the most recently buffered event, if any.
func (b *Buffer) Last() (Event, bool) {
	if len(b.events) == 0 {
		return Event{}, false
	}
	return b.events[len(b.events)-1], true
}
