package chat

// Command is a transition applied to State by Reduce. The set is closed:
// only the types declared in this file implement it.
type Command interface {
	Name() string
	isCommand()
}

// AddUserMessage appends a user-authored entry exactly as given.
type AddUserMessage struct {
	Entry Entry
}

// AppendBotReply appends a bot entry carrying the gateway reply. ID is
// assigned when the command is applied, not when it is built.
type AppendBotReply struct {
	Text      string
	Timestamp string
	UserImage string
}

// ClearAll empties the conversation.
type ClearAll struct{}

// EditMessage replaces the message and timestamp of the entry with ID.
type EditMessage struct {
	ID        int
	Message   string
	Timestamp string
}

// DeleteMessage removes the entry with ID.
type DeleteMessage struct {
	ID int
}

// IncrementVote adds one vote to the entry with ID.
type IncrementVote struct {
	ID int
}

// DecrementVote removes one vote from the entry with ID.
type DecrementVote struct {
	ID int
}

func (AddUserMessage) Name() string { return "addUserMessage" }
func (AppendBotReply) Name() string { return "appendBotReply" }
func (ClearAll) Name() string       { return "clearAll" }
func (EditMessage) Name() string    { return "editMessage" }
func (DeleteMessage) Name() string  { return "deleteMessage" }
func (IncrementVote) Name() string  { return "incrementVote" }
func (DecrementVote) Name() string  { return "decrementVote" }

func (AddUserMessage) isCommand() {}
func (AppendBotReply) isCommand() {}
func (ClearAll) isCommand()       {}
func (EditMessage) isCommand()    {}
func (DeleteMessage) isCommand()  {}
func (IncrementVote) isCommand()  {}
func (DecrementVote) isCommand()  {}
