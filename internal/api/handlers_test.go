package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamchain/heyway-core/internal/config"
	"github.com/adamchain/heyway-core/internal/importer"
	"github.com/adamchain/heyway-core/internal/poller"
)

// fakeImports records calls and returns canned results.
type fakeImports struct {
	lastRecords []importer.Record
	lastOpts    importer.Options
	result      *importer.JobResult
	progress    *importer.Progress
}

func (f *fakeImports) Import(ctx context.Context, records []importer.Record, opts importer.Options) (*importer.JobResult, error) {
	f.lastRecords = records
	f.lastOpts = opts
	if f.result != nil {
		return f.result, nil
	}
	res := importer.Validate(records, opts)
	return &importer.JobResult{
		JobID:    "job-test",
		Imported: len(res.ValidContacts),
		Errors:   res.Errors,
		Summary:  res.Summary,
	}, nil
}

func (f *fakeImports) GetProgress(ctx context.Context, jobID string) (*importer.Progress, error) {
	if f.progress != nil && f.progress.JobID == jobID {
		return f.progress, nil
	}
	return nil, nil
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{CallsPerSecond: 8, ConcurrencyCap: 80, AdvisoryThreshold: 300}
}

func newTestServer(t *testing.T, imports *fakeImports, sync *poller.Synchronizer) *httptest.Server {
	t.Helper()
	h := NewHandlers(imports, sync, nil, importer.Options{}, testQueueConfig())
	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, &fakeImports{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestValidateImport(t *testing.T) {
	srv := newTestServer(t, &fakeImports{}, nil)

	payload := `{"records":[
		{"name":"Ada","phoneNumber":"(555) 123-4567"},
		{"name":"","phoneNumber":"555.123.4567"}
	]}`
	resp, err := http.Post(srv.URL+"/api/import/validate", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var res importer.Result
	decodeBody(t, resp, &res)
	assert.Equal(t, 2, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Valid)
	require.Len(t, res.ValidContacts, 1)
	assert.Equal(t, "5551234567", res.ValidContacts[0].NormalizedPhone)
	// Second record: blank name plus in-batch duplicate phone.
	codes := map[importer.ErrorCode]bool{}
	for _, e := range res.Errors {
		codes[e.Code] = true
	}
	assert.True(t, codes[importer.CodeMissingRequiredField])
	assert.True(t, codes[importer.CodeDuplicateInBatch])
}

func TestValidateImport_EmptyBody(t *testing.T) {
	srv := newTestServer(t, &fakeImports{}, nil)

	resp, err := http.Post(srv.URL+"/api/import/validate", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRunImport_PassesOptionOverrides(t *testing.T) {
	fake := &fakeImports{}
	srv := newTestServer(t, fake, nil)

	payload := `{"records":[{"name":"Ada","phoneNumber":"5551234567"}],
		"requireReferenceDate":true,"referenceDateField":"appointmentDate"}`
	resp, err := http.Post(srv.URL+"/api/import/", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.True(t, fake.lastOpts.RequireReferenceDate)
	assert.Equal(t, "appointmentDate", fake.lastOpts.ReferenceDateField)
}

func TestRunFileImport(t *testing.T) {
	fake := &fakeImports{}
	srv := newTestServer(t, fake, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	fw.Write([]byte("name,phoneNumber\nAda,555-123-4567\nBen,555-765-4321\n"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/import/file", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var res importer.JobResult
	decodeBody(t, resp, &res)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, fake.lastRecords, 2)
	assert.Equal(t, "Ada", fake.lastRecords[0].Name)
}

func TestGetImportProgress(t *testing.T) {
	fake := &fakeImports{progress: &importer.Progress{JobID: "job-9", Status: "running", Imported: 12}}
	srv := newTestServer(t, fake, nil)

	resp, err := http.Get(srv.URL + "/api/import/job-9/progress")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var p importer.Progress
	decodeBody(t, resp, &p)
	assert.Equal(t, 12, p.Imported)

	resp, err = http.Get(srv.URL + "/api/import/unknown/progress")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListAutomations(t *testing.T) {
	sync := poller.New(func(ctx context.Context) ([]poller.Snapshot, error) {
		return nil, nil
	}, poller.DefaultConfig())
	sync.SetData([]poller.Snapshot{{ID: "a1", Name: "Reminders", Active: true}})

	srv := newTestServer(t, &fakeImports{}, sync)

	resp, err := http.Get(srv.URL + "/api/automations/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Automations []poller.Snapshot `json:"automations"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Automations, 1)
	assert.Equal(t, "a1", body.Automations[0].ID)
}

func TestRefreshAutomations(t *testing.T) {
	sync := poller.New(func(ctx context.Context) ([]poller.Snapshot, error) {
		return []poller.Snapshot{{ID: "a2", Name: "Follow-ups"}}, nil
	}, poller.DefaultConfig())

	srv := newTestServer(t, &fakeImports{}, sync)

	resp, err := http.Post(srv.URL+"/api/automations/refresh", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Automations []poller.Snapshot `json:"automations"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Automations, 1)
	assert.Equal(t, "a2", body.Automations[0].ID)
}

func TestGetQueueEstimate(t *testing.T) {
	srv := newTestServer(t, &fakeImports{}, nil)

	resp, err := http.Get(srv.URL + "/api/queue/estimate?contacts=300")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Contacts int    `json:"contacts"`
		Window   struct {
			Seconds int `json:"seconds"`
			Minutes int `json:"minutes"`
		} `json:"window"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 38, body.Window.Seconds)
	assert.Equal(t, 1, body.Window.Minutes)
	// 300 is at the threshold, not above it.
	assert.Empty(t, body.Message)

	resp, err = http.Get(srv.URL + "/api/queue/estimate?contacts=301")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body.Message)
}

func TestGetQueueEstimate_MessageMatchesConfiguredRates(t *testing.T) {
	h := NewHandlers(&fakeImports{}, nil, nil, importer.Options{},
		config.QueueConfig{CallsPerSecond: 1, ConcurrencyCap: 80, AdvisoryThreshold: 300})
	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/queue/estimate?contacts=600")
	require.NoError(t, err)

	var body struct {
		Window struct {
			Seconds int `json:"seconds"`
			Minutes int `json:"minutes"`
		} `json:"window"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 600, body.Window.Seconds)
	assert.Equal(t, 10, body.Window.Minutes)
	// The advisory describes the same configured rate as the window.
	assert.Contains(t, body.Message, "10 minutes")
}

func TestGetQueueEstimate_BadInput(t *testing.T) {
	srv := newTestServer(t, &fakeImports{}, nil)

	resp, err := http.Get(srv.URL + "/api/queue/estimate?contacts=nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
