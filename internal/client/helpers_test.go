package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/crm-client/internal/client"
	crmhttp "github.com/fivetwenty-io/crm-client/internal/http"
	"github.com/fivetwenty-io/crm-client/pkg/connpool"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/stretchr/testify/require"
)

const (
	apiPrefix    = "/services/data/v59.0"
	accountID    = "001000000000001AAA"
	contactID    = "003000000000001AAA"
	createdID    = "001000000000009AAA"
	validToken   = "token-1"
	refreshToken = "token-2"
)

var acme = crm.Tenant{Key: "acme"}

// staticAuth issues sessions pointing at a test server. Each login hands
// out the next token in tokens.
type staticAuth struct {
	baseURL string
	tokens  []string
	logins  atomic.Int32
}

func (a *staticAuth) Login(_ context.Context, creds connpool.Credentials) (*connpool.Session, error) {
	n := int(a.logins.Add(1))
	token := a.tokens[len(a.tokens)-1]

	if n <= len(a.tokens) {
		token = a.tokens[n-1]
	}

	return &connpool.Session{
		Token:       token,
		UserID:      creds.Username,
		InstanceURL: a.baseURL,
		ServerURLs: map[crm.OperationKind]string{
			crm.KindREST: a.baseURL + apiPrefix,
		},
		IssuedAt: time.Now(),
	}, nil
}

// fakeAPI is an in-memory stand-in for the remote REST endpoints.
type fakeAPI struct {
	mutex    sync.Mutex
	token    string
	requests []string
	bodies   map[string]map[string]interface{}
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	api := &fakeAPI{token: validToken, bodies: map[string]map[string]interface{}{}}
	server := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(server.Close)

	return api, server
}

func (f *fakeAPI) setToken(token string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.token = token
}

func (f *fakeAPI) requestLog() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return append([]string(nil), f.requests...)
}

func (f *fakeAPI) body(key string) map[string]interface{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.bodies[key]
}

func (f *fakeAPI) serve(writer http.ResponseWriter, request *http.Request) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		peak := f.peak.Load()
		if current <= peak || f.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mutex.Lock()
	token := f.token
	f.requests = append(f.requests, request.Method+" "+request.URL.RequestURI())
	f.mutex.Unlock()

	writer.Header().Set("Content-Type", "application/json")

	if request.Header.Get("Authorization") != "Bearer "+token {
		writer.WriteHeader(http.StatusUnauthorized)
		_, _ = writer.Write([]byte(`[{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}]`))

		return
	}

	path := strings.TrimPrefix(request.URL.Path, apiPrefix)

	switch {
	case path == "/query" || path == "/queryAll":
		f.serveQuery(writer, request.URL.Query().Get("q"), path == "/queryAll")
	case path == "/query/01gNEXT-2000":
		_, _ = writer.Write([]byte(`{"totalSize":3,"done":true,"records":[
			{"attributes":{"type":"Account"},"Id":"001000000000003AAA","Name":"Gamma"}]}`))
	case path == "/sobjects/Account/"+accountID && request.Method == http.MethodGet:
		_, _ = writer.Write([]byte(`{"attributes":{"type":"Account","url":"/x"},"Id":"` + accountID + `",
			"Name":"Acme","Phone":null,"Owner":{"attributes":{"type":"User"},"Name":"Ada"}}`))
	case path == "/sobjects/Account/"+accountID && request.Method == http.MethodPatch:
		f.captureBody(request, "update")
		writer.WriteHeader(http.StatusNoContent)
	case path == "/sobjects/Account/"+accountID && request.Method == http.MethodDelete:
		writer.WriteHeader(http.StatusNoContent)
	case path == "/sobjects/Account/"+contactID:
		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte(`[{"errorCode":"NOT_FOUND","message":"The requested resource does not exist"}]`))
	case path == "/sobjects/Account" && request.Method == http.MethodPost:
		f.captureBody(request, "create")
		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{"id":"` + createdID + `","success":true,"errors":[]}`))
	case path == "/sobjects/Account/describe":
		_, _ = writer.Write([]byte(accountDescribe))
	case path == "/sobjects/Broken/describe":
		_, _ = writer.Write([]byte(`{"name":`))
	default:
		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte(`[{"errorCode":"NOT_FOUND","message":"no route"}]`))
	}
}

func (f *fakeAPI) serveQuery(writer http.ResponseWriter, soql string, all bool) {
	switch {
	case strings.Contains(soql, "FROM Bogus"):
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`[{"errorCode":"MALFORMED_QUERY","message":"unexpected token"}]`))
	case strings.Contains(soql, "FROM Broken"):
		_, _ = writer.Write([]byte(`{"totalSize":1,"done":false,"records":[]}`))
	case all:
		_, _ = writer.Write([]byte(`{"totalSize":1,"done":true,"records":[
			{"attributes":{"type":"Account"},"Id":"001000000000004AAA","Name":"Deleted","IsDeleted":true}]}`))
	default:
		_, _ = writer.Write([]byte(`{"totalSize":3,"done":false,
			"nextRecordsUrl":"` + apiPrefix + `/query/01gNEXT-2000","records":[
			{"attributes":{"type":"Account"},"Id":"` + accountID + `","Name":"Alpha"},
			{"attributes":{"type":"Account"},"Id":"001000000000002AAA","Name":"Beta",
			 "Contacts":{"totalSize":1,"done":true,"records":[
			   {"attributes":{"type":"Contact"},"Id":"` + contactID + `","LastName":"Lovelace"}]}}]}`))
	}
}

func (f *fakeAPI) captureBody(request *http.Request, key string) {
	var body map[string]interface{}

	_ = json.NewDecoder(request.Body).Decode(&body)

	f.mutex.Lock()
	f.bodies[key] = body
	f.mutex.Unlock()
}

// Region has two values; Country depends on it. "US" is valid for
// Americas (bit 0), "FR" for Europe (bit 1), "XX" for both.
const accountDescribe = `{
	"name":"Account","label":"Account","keyPrefix":"001","queryable":true,
	"createable":true,"updateable":true,"deletable":true,
	"fields":[
		{"name":"Id","label":"Account ID","type":"id","nillable":false},
		{"name":"Name","label":"Account Name","type":"string","nillable":false},
		{"name":"Region__c","label":"Region","type":"picklist","nillable":true,
		 "picklistValues":[
			{"value":"Americas","label":"Americas","active":true,"defaultValue":false},
			{"value":"Europe","label":"Europe","active":true,"defaultValue":false}]},
		{"name":"Country__c","label":"Country","type":"picklist","nillable":true,
		 "dependentPicklist":true,"controllerName":"Region__c",
		 "picklistValues":[
			{"value":"US","label":"United States","active":true,"defaultValue":false,"validFor":"gA=="},
			{"value":"FR","label":"France","active":true,"defaultValue":false,"validFor":"QA=="},
			{"value":"XX","label":"Both","active":true,"defaultValue":false,"validFor":"wA=="},
			{"value":"OLD","label":"Retired","active":false,"defaultValue":false,"validFor":"wA=="}]}
	]}`

// newTestClient configures acme against server with the given limit.
func newTestClient(t *testing.T, server *httptest.Server, maxConcurrent int) (*client.Client, *staticAuth) {
	t.Helper()

	auth := &staticAuth{baseURL: server.URL, tokens: []string{validToken, refreshToken}}

	pool, err := connpool.NewPool(auth, client.NewBindingFactory(crmhttp.WithTimeout(5*time.Second)))
	require.NoError(t, err)

	c := client.New(pool, nil)
	require.NoError(t, c.Configure(context.Background(), acme, "ada@acme.example", "secret", maxConcurrent))

	return c, auth
}
