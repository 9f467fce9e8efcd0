package bus

// Inbound represents a message received from a chat transport.
type Inbound struct {
	Transport string            // source transport name (e.g. "discord", "telegram")
	SenderID  string            // sender identifier on that transport
	ChannelID string            // channel/conversation identifier
	TenantID  string            // billing/quota owner (guild, workspace, chat)
	Content   string            // text content
	Metadata  map[string]string // arbitrary metadata
}

// Outbound represents a message to be delivered to a chat transport.
type Outbound struct {
	Transport string // target transport
	ChannelID string // target channel
	Content   string // text content
	Kind      string // "text" or "error"
}
