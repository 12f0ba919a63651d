package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

type response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Details   json.RawMessage `json:"details"`
	Timestamp time.Time       `json:"timestamp"`
}

type fixture struct {
	pipeline  *mockPipeline
	usage     *mockUsage
	scheduler *mockScheduler
	extractor *mockExtractor
	handler   http.Handler
}

func newFixture(t *testing.T, withScheduler bool) *fixture {
	t.Helper()
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{MaxURLs: 50, MaxJobs: 20, Concurrency: 3, Priority: 5, StaleDays: 7},
		Server:   config.ServerConfig{AllowedOrigins: []string{"https://trucks.example"}},
	}
	f := &fixture{pipeline: &mockPipeline{}, usage: &mockUsage{}, scheduler: &mockScheduler{}, extractor: &mockExtractor{}}
	var sched Scheduler
	if withScheduler {
		sched = f.scheduler
	}
	srv := New(cfg, f.pipeline, f.usage, sched, WithExtractor(f.extractor))
	srv.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.handler = srv.Handler()
	t.Cleanup(func() {
		f.pipeline.AssertExpectations(t)
		f.usage.AssertExpectations(t)
		f.scheduler.AssertExpectations(t)
		f.extractor.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), resp.Timestamp)
}

func TestRunPipeline_AppliesOverrides(t *testing.T) {
	f := newFixture(t, false)
	f.pipeline.On("Run", mock.Anything, mock.MatchedBy(func(req pipeline.Request) bool {
		return req.Type == pipeline.TypeProcessing &&
			req.Params.MaxJobs == 0 &&
			req.Params.Concurrency == 2 &&
			req.Params.MaxURLs == 50
	})).Return(&pipeline.Result{
		Success: true,
		Type:    pipeline.TypeProcessing,
		Phase:   pipeline.PhaseCompleted,
		Errors:  []string{},
	})

	code, resp := f.do(t, http.MethodPost, "/api/pipeline",
		`{"action":"processing","config":{"maxJobs":0,"concurrency":2}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.Equal(t, pipeline.PhaseCompleted, res.Phase)
}

func TestRunPipeline_UnknownAction(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodPost, "/api/pipeline", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "unknown pipeline type")
	f.pipeline.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunPipeline_InvalidBody(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodPost, "/api/pipeline", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid request body", resp.Error)
}

func TestRunPipeline_FailedRun(t *testing.T) {
	f := newFixture(t, false)
	f.pipeline.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Result{
		Type:   pipeline.TypeDiscovery,
		Phase:  pipeline.PhaseFailed,
		Error:  "discovery: search client not configured",
		Errors: []string{},
	})

	code, resp := f.do(t, http.MethodPost, "/api/pipeline", `{"action":"discovery"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "discovery: search client not configured", resp.Error)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(resp.Details, &res))
	assert.Equal(t, pipeline.PhaseFailed, res.Phase)
}

func TestPipelineStatus(t *testing.T) {
	f := newFixture(t, false)
	f.pipeline.On("Status", mock.Anything).Return(&pipeline.Status{
		Jobs: map[model.JobStatus]int{model.JobPending: 3},
	}, nil)

	code, resp := f.do(t, http.MethodGet, "/api/pipeline/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"pending":3`)
}

func TestExecuteJob(t *testing.T) {
	tests := []struct {
		name    string
		outcome *pipeline.JobOutcome
		err     error
		code    int
	}{
		{
			name:    "completed",
			outcome: &pipeline.JobOutcome{Job: &model.ScrapingJob{ID: "j1", Status: model.JobCompleted}, Created: true},
			code:    http.StatusOK,
		},
		{
			name:    "job failed",
			outcome: &pipeline.JobOutcome{Job: &model.ScrapingJob{ID: "j1"}, Error: "no food truck name found"},
			code:    http.StatusUnprocessableEntity,
		},
		{
			name: "not found",
			err:  eris.Wrap(store.ErrNotFound, "store: get job"),
			code: http.StatusNotFound,
		},
		{
			name: "not pending",
			err:  eris.Wrap(store.ErrInvalidTransition, "store: claim job"),
			code: http.StatusConflict,
		},
		{
			name: "store down",
			err:  eris.New("store: connection refused"),
			code: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			if tt.outcome != nil {
				f.pipeline.On("ExecuteJob", mock.Anything, "j1").Return(tt.outcome, nil)
			} else {
				f.pipeline.On("ExecuteJob", mock.Anything, "j1").Return(nil, tt.err)
			}
			code, resp := f.do(t, http.MethodPost, "/api/jobs/j1/execute", "")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.code == http.StatusOK, resp.Success)
		})
	}
}

func TestUsage(t *testing.T) {
	f := newFixture(t, false)
	f.usage.On("Snapshot", mock.Anything).Return([]monitoring.ServiceUsage{
		{Service: "tavily", RequestsUsed: 10, RequestLimit: 100},
	}, nil)
	f.usage.On("Usage", mock.Anything, "firecrawl").Return(&monitoring.ServiceUsage{Service: "firecrawl"}, nil)
	f.usage.On("Usage", mock.Anything, "bogus").Return(nil, eris.Wrap(monitoring.ErrUnknownService, "monitoring: bogus"))

	code, resp := f.do(t, http.MethodGet, "/api/usage", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"service":"tavily"`)

	code, resp = f.do(t, http.MethodGet, "/api/usage?service=firecrawl", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"service":"firecrawl"`)

	code, _ = f.do(t, http.MethodGet, "/api/usage?service=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScheduler(t *testing.T) {
	f := newFixture(t, true)
	status := []jobs.TaskStatus{{ID: "maintenance", Name: "Maintenance", Enabled: false}}
	f.scheduler.On("Status").Return(status)
	f.scheduler.On("Disable", "maintenance").Return(nil)
	f.scheduler.On("Enable", "nope").Return(eris.Wrap(jobs.ErrTaskNotFound, "nope"))

	code, resp := f.do(t, http.MethodGet, "/api/scheduler", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"maintenance"`)

	code, resp = f.do(t, http.MethodPost, "/api/scheduler/maintenance/disable", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	code, _ = f.do(t, http.MethodPost, "/api/scheduler/nope/enable", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScheduler_Disabled(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodGet, "/api/scheduler", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "scheduler is disabled", resp.Error)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodGet, "/api/nowhere", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
}

func TestExtract(t *testing.T) {
	f := newFixture(t, false)
	f.extractor.On("Extract", mock.Anything, extract.KindHours, "Open Mon-Fri 11-3").Return(&extract.Result{
		Status: extract.StatusOK,
		Kind:   extract.KindHours,
		Data: &extract.HoursPayload{Hours: model.OperatingHours{
			"monday": {Open: "11:00", Close: "15:00"},
		}},
		Attempts:      1,
		ParseAttempts: 1,
	})

	code, resp := f.do(t, http.MethodPost, "/api/extract", `{"kind":"hours","input":"Open Mon-Fri 11-3"}`)
	assert.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), `"status":"ok"`)
	assert.Contains(t, string(resp.Data), `"open":"11:00"`)
}

func TestExtract_Rejects(t *testing.T) {
	f := newFixture(t, false)

	code, resp := f.do(t, http.MethodPost, "/api/extract", `{"kind":"poetry","input":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(resp.Details), "fullExtraction")

	code, resp = f.do(t, http.MethodPost, "/api/extract", `{"kind":"menu","input":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "input is required", resp.Error)

	code, _ = f.do(t, http.MethodPost, "/api/extract", `{`)
	assert.Equal(t, http.StatusBadRequest, code)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_FailureStatus(t *testing.T) {
	tests := []struct {
		status extract.Status
		want   int
	}{
		{extract.StatusRateLimited, http.StatusTooManyRequests},
		{extract.StatusParseError, http.StatusUnprocessableEntity},
		{extract.StatusConfigError, http.StatusServiceUnavailable},
		{extract.StatusFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t, false)
			f.extractor.On("Extract", mock.Anything, extract.KindMenu, "tacos $3").
				Return(&extract.Result{Status: tt.status, Kind: extract.KindMenu, Error: "extract: " + string(tt.status)})

			code, resp := f.do(t, http.MethodPost, "/api/extract", `{"kind":"menu","input":"tacos $3"}`)
			assert.Equal(t, tt.want, code)
			assert.False(t, resp.Success)
			assert.Equal(t, "extract: "+string(tt.status), resp.Error)
			assert.Contains(t, string(resp.Details), string(tt.status))
		})
	}
}

func TestExtract_Disabled(t *testing.T) {
	cfg := &config.Config{}
	srv := New(cfg, &mockPipeline{}, &mockUsage{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"kind":"menu","input":"x"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
