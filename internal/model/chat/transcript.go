package chat

// Transcript is the ordered, append-only list of messages of a session.
//
// A Transcript value is never mutated after construction: Append returns a
// new Transcript backed by its own array, so a snapshot handed to an observer
// stays stable while the session keeps growing.
type Transcript struct {
	messages []Message
}

// NewTranscript returns a transcript seeded with the supplied messages.
func NewTranscript(seed ...Message) Transcript {
	return Transcript{messages: append([]Message(nil), seed...)}
}

// Append returns a new transcript with msg added after the existing turns.
func (t Transcript) Append(msg Message) Transcript {
	next := make([]Message, len(t.messages), len(t.messages)+1)
	copy(next, t.messages)
	return Transcript{messages: append(next, msg)}
}

// Messages returns a copy of the turns in insertion order.
func (t Transcript) Messages() []Message {
	return append([]Message(nil), t.messages...)
}

// Len reports the number of turns.
func (t Transcript) Len() int {
	return len(t.messages)
}

// Last returns the most recent turn.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
