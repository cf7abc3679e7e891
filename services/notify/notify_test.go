package notifysvc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akcent-academy/crm/core"
	testutil "github.com/akcent-academy/crm/tests"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "+7 (701) 234-56-78", want: "77012345678"},
		{in: "8 701 234 56 78", want: "77012345678"},
		{in: "77012345678", want: "77012345678"},
		{in: "+44 20 7946 0958", want: "442079460958"},
		{in: "12345", wantErr: true},
		{in: "1234567890123456", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeNumber(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeNumber() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeNumber() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock()
	svc.Notify(
		&core.Message{Number: "8 701 234 56 78", Text: "hi"},
		&core.Message{Number: "123", Text: "bad number"},
		&core.Message{Number: "+77012345678"},
	)
	assert.Equal(t, []core.Message{{Number: "77012345678", Text: "hi"}}, svc.SentMessages())
}

func TestWhatsAppService(t *testing.T) {
	received := make(chan sendPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/send", r.URL.Path)
		var p sendPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conf := &core.Config{Notify: core.NotifyConfig{WhatsAppURL: srv.URL + "/", Timeout: time.Second}}
	logger := &testutil.Logger{}
	svc := NewWhatsAppService(conf, logger)
	svc.Notify(&core.Message{Number: "+7 701 234 56 78", Text: "automark done"})

	select {
	case p := <-received:
		assert.Equal(t, sendPayload{Number: "77012345678", Message: "automark done"}, p)
	case <-time.After(2 * time.Second):
		require.Fail(t, "message not delivered")
	}
}
