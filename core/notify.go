package core

type (
	// Message is a plain text notification for a phone number.
	Message struct {
		Number string
		Text   string
	}

	// Notifier is any service that can deliver notifications.
	// Delivery is best-effort: implementations never report failures to the caller.
	Notifier interface {
		// Notify sends messages concurrently
		Notify(messages ...*Message)
	}
)

func (m *Message) HasRecipient() bool { return m.Number != "" }
func (m *Message) HasContent() bool   { return m.Text != "" }
