package control

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/form-autofill-agent/internal/agent"
	"github.com/polzovatel/form-autofill-agent/internal/dom"
	"github.com/polzovatel/form-autofill-agent/internal/metrics"
	"github.com/polzovatel/form-autofill-agent/internal/tools"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func setup(t *testing.T, src string) (*httptest.Server, *dom.Document, *metrics.Metrics) {
	t.Helper()
	doc, err := dom.ParseString(src, "https://shop.example.com/checkout")
	require.NoError(t, err)
	latest := &Latest{}
	m := metrics.New()
	o := agent.NewOrchestrator(agent.Config{}, doc, zerolog.Nop(), agent.WithNotifier(latest), agent.WithMetrics(m))
	srv := httptest.NewServer(New(tools.New(o, nil), latest, m, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, doc, m
}

func call(t *testing.T, method, url, body string) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

const checkout = `<form id="checkout">
	<label for="n">Full name</label><input id="n" name="name">
	<label for="c">City</label><input id="c" name="city">
</form>`

func TestServer_DetectThenForms(t *testing.T) {
	srv, _, _ := setup(t, checkout)

	status, env := call(t, http.MethodGet, srv.URL+"/forms", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "no_detection", env.Error.Code)

	status, env = call(t, http.MethodPost, srv.URL+"/commands/detect_forms", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = call(t, http.MethodGet, srv.URL+"/forms", "")
	require.Equal(t, http.StatusOK, status)
	var n struct {
		Domain string `json:"domain"`
		Forms  []struct {
			ID     string `json:"id"`
			Fields []struct {
				Name  string `json:"name"`
				Label string `json:"label"`
			} `json:"fields"`
		} `json:"forms"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, "shop.example.com", n.Domain)
	require.Len(t, n.Forms, 1)
	assert.Equal(t, "checkout", n.Forms[0].ID)
	assert.Equal(t, "Full name", n.Forms[0].Fields[0].Label)
}

func TestServer_FillForm(t *testing.T) {
	srv, doc, m := setup(t, checkout)

	status, env := call(t, http.MethodPost, srv.URL+"/commands/fill_form",
		`{"formId":"checkout","userData":{"firstName":"Ada","lastName":"Lovelace","city":"London"}}`)
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)

	var res struct {
		Observation string `json:"observation"`
		Data        struct {
			Outcome string `json:"outcome"`
			Applied int    `json:"applied"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "success", res.Data.Outcome)
	assert.Equal(t, 2, res.Data.Applied)

	name, _ := doc.First(`input[name="name"]`)
	assert.Equal(t, "Ada Lovelace", name.Value())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/commands/{name}", "200")))
}

func TestServer_Errors(t *testing.T) {
	srv, _, _ := setup(t, checkout)

	status, env := call(t, http.MethodPost, srv.URL+"/commands/click_text", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_command", env.Error.Code)

	status, env = call(t, http.MethodPost, srv.URL+"/commands/fill_form", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_body", env.Error.Code)

	status, env = call(t, http.MethodPost, srv.URL+"/commands/fill_form", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "no_user_data", env.Error.Code)

	status, env = call(t, http.MethodPost, srv.URL+"/commands/analyze_form", `{"formId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "form_not_found", env.Error.Code)
}

func TestServer_NoForms(t *testing.T) {
	srv, _, _ := setup(t, `<p>static page</p>`)

	status, env := call(t, http.MethodPost, srv.URL+"/commands/get_form_data", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no_forms", env.Error.Code)
}

func TestServer_HealthCommandsMetrics(t *testing.T) {
	srv, _, _ := setup(t, checkout)

	status, env := call(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))

	status, env = call(t, http.MethodGet, srv.URL+"/commands", "")
	assert.Equal(t, http.StatusOK, status)
	var list []tools.Tool
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 4)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "autofill_http_requests_total")
}
