package notifysvc

import (
	"fmt"
	"log"
	"sync"

	"github.com/akcent-academy/crm/core"
)

type consoleService struct {
	logger        core.Logger
	disableOutput bool

	mu           sync.Mutex
	sentMessages []core.Message
}

var _ core.Notifier = (*consoleService)(nil)

// NewConsoleService prints messages instead of sending them.
func NewConsoleService(logger core.Logger) core.Notifier {
	return &consoleService{logger: logger}
}

func (svc *consoleService) Notify(messages ...*core.Message) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc *consoleService) sendMessage(msg *core.Message) {
	if !msg.HasRecipient() || !msg.HasContent() {
		return
	}
	number, err := NormalizeNumber(msg.Number)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Warn(fmt.Sprintf("dropping message: %v", err))
		}
		return
	}

	if !svc.disableOutput {
		log.Printf("To: +%s\r\n%s\r\n", number, msg.Text)
	}
	svc.mu.Lock()
	svc.sentMessages = append(svc.sentMessages, core.Message{Number: number, Text: msg.Text})
	svc.mu.Unlock()
}

// ConsoleServiceMock records messages synchronously.
type ConsoleServiceMock struct {
	consoleService
}

func NewConsoleServiceMock() *ConsoleServiceMock {
	return &ConsoleServiceMock{consoleService: consoleService{disableOutput: true}}
}

func (svc *ConsoleServiceMock) Notify(messages ...*core.Message) {
	for _, msg := range messages {
		// run synchronously
		svc.sendMessage(msg)
	}
}

// SentMessages returns the messages delivered so far, numbers normalized.
func (svc *ConsoleServiceMock) SentMessages() []core.Message {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.Message(nil), svc.sentMessages...)
}
