package llm

// Conversation is an append-only message log. Messages are never mutated or
// removed once appended; the engine extends it as turns complete and callers
// snapshot it for persistence.
type Conversation struct {
	messages []Message
}

func NewConversation(messages ...Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, messages...)
	return c
}

func (c *Conversation) Append(messages ...Message) {
	c.messages = append(c.messages, messages...)
}

// Messages returns a copy of the log so callers can't mutate history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	return len(c.messages)
}
