package notifysvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"

	"github.com/akcent-academy/crm/core"
)

var endpoint = "/send"

type whatsAppService struct {
	baseURL string
	client  *rest.Client
	logger  core.Logger
}

var _ core.Notifier = (*whatsAppService)(nil)

// NewWhatsAppService posts messages to the WhatsApp sending microservice.
func NewWhatsAppService(conf *core.Config, logger core.Logger) core.Notifier {
	return &whatsAppService{
		baseURL: strings.TrimRight(conf.Notify.WhatsAppURL, "/"),
		client:  &rest.Client{HTTPClient: &http.Client{Timeout: conf.Notify.Timeout}},
		logger:  logger,
	}
}

func (svc whatsAppService) Notify(messages ...*core.Message) {
	for _, msg := range messages {
		msg := msg
		go svc.sendMessage(msg)
	}
}

func (svc whatsAppService) sendMessage(msg *core.Message) {
	if !msg.HasRecipient() || !msg.HasContent() {
		return
	}
	number, err := NormalizeNumber(msg.Number)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("dropping message: %v", err))
		return
	}
	svc.send(number, msg.Text)
}

type sendPayload struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

func (svc whatsAppService) send(number, text string) {
	body, err := json.Marshal(sendPayload{Number: number, Message: text})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("encoding message: %v", err), err)
		return
	}

	res, err := svc.client.Send(rest.Request{
		Method:  rest.Post,
		BaseURL: svc.baseURL + endpoint,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending message: %v", err), err)
	} else if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending message - status: %d - Body: %s", res.StatusCode, res.Body))
	}
}
