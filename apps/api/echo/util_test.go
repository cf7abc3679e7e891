package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
	inmemdb "github.com/akcent-academy/crm/storage/database/inmem"
	testutil "github.com/akcent-academy/crm/tests"
)

var testConf = &core.Config{AppName: "Akcent CRM", TestMode: true, Auth: core.AuthConfig{SecretKey: "test-secret"}}

func setup(t *testing.T, access core.AccessChecker) (Server, *inmemdb.DB, *testutil.Logger) {
	t.Helper()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), "aida", "bolat")

	logger := &testutil.Logger{}
	clk := testutil.NewClock(2025, time.February, 3, 12, 0)
	store := attendance.NewRecordStore(inmemdb.NewRecordRepository(db), inmemdb.NewRosterRepository(db), clk, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	srv := NewServer(ServerDeps{
		Conf:          testConf,
		Logger:        logger,
		AttendanceSvc: attendance.NewService(store, validate, translator),
		Access:        access,
	})
	return srv, db, logger
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
