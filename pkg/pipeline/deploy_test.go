package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/sitepipe/pkg/core"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, req DeployRequest) (Deploy, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Deploy), args.Error(1)
}

func TestDeployStage_PublishesBuiltPage(t *testing.T) {
	in := inputWith("foo.com", map[core.Stage]any{
		core.StageBuild: newBuild([]byte("<!DOCTYPE html><p>hi</p>")),
	})
	in.JobID = "job-1"

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, DeployRequest{
		JobID: "job-1",
		Key:   "foo.com",
		HTML:  []byte("<!DOCTYPE html><p>hi</p>"),
	}).Return(Deploy{Deployed: true, URL: "https://cdn.test/foo.com/index.html"}, nil).Once()

	raw, err := DeployStage(pub).Run(context.Background(), in)
	require.NoError(t, err)

	var d Deploy
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.True(t, d.Deployed)
	assert.Equal(t, "https://cdn.test/foo.com/index.html", d.URL)
	pub.AssertExpectations(t)
}

func TestDeployStage_PublisherErrorIsReturned(t *testing.T) {
	in := inputWith("foo.com", map[core.Stage]any{
		core.StageBuild: newBuild([]byte("<html></html>")),
	})

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("DeployRequest")).
		Return(Deploy{}, errors.New("bucket unreachable")).Once()

	_, err := DeployStage(pub).Run(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
	pub.AssertExpectations(t)
}

func TestDeployStage_MissingBuildNeverCallsPublisher(t *testing.T) {
	pub := new(mockPublisher)

	_, err := DeployStage(pub).Run(context.Background(), inputWith("foo.com", nil))
	require.Error(t, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
