package chat

// Reduce applies cmd to s and returns the resulting state. Commands that
// target an id not present in s return s unchanged.
func Reduce(s State, cmd Command) State {
	switch c := cmd.(type) {
	case AddUserMessage:
		return s.append(c.Entry)
	case AppendBotReply:
		return s.append(Entry{
			ID:        s.NextID(),
			Author:    AuthorBot,
			Message:   c.Text,
			Timestamp: c.Timestamp,
			UserImage: c.UserImage,
		})
	case ClearAll:
		return State{nextID: 1, policy: s.policy}
	case EditMessage:
		return s.update(c.ID, func(e *Entry) {
			e.Message = c.Message
			e.Timestamp = c.Timestamp
		})
	case DeleteMessage:
		return s.remove(c.ID)
	case IncrementVote:
		return s.update(c.ID, func(e *Entry) { e.Votes++ })
	case DecrementVote:
		return s.update(c.ID, func(e *Entry) { e.Votes-- })
	default:
		return s
	}
}
