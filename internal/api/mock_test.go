package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
)

type mockPipeline struct{ mock.Mock }

func (m *mockPipeline) Run(ctx context.Context, req pipeline.Request) *pipeline.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(*pipeline.Result)
}

func (m *mockPipeline) Status(ctx context.Context) (*pipeline.Status, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*pipeline.Status), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPipeline) ExecuteJob(ctx context.Context, id string) (*pipeline.JobOutcome, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*pipeline.JobOutcome), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsage struct{ mock.Mock }

func (m *mockUsage) Usage(ctx context.Context, service string) (*monitoring.ServiceUsage, error) {
	args := m.Called(ctx, service)
	if v := args.Get(0); v != nil {
		return v.(*monitoring.ServiceUsage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsage) Snapshot(ctx context.Context) ([]monitoring.ServiceUsage, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]monitoring.ServiceUsage), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) Status() []jobs.TaskStatus {
	return m.Called().Get(0).([]jobs.TaskStatus)
}

func (m *mockScheduler) Enable(id string) error  { return m.Called(id).Error(0) }
func (m *mockScheduler) Disable(id string) error { return m.Called(id).Error(0) }

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, kind extract.Kind, input string) *extract.Result {
	return m.Called(ctx, kind, input).Get(0).(*extract.Result)
}
