package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeAPI struct {
	pulls   int
	created *container.Config
	removed []string
	exit    int64
	// block keeps the container running until the wait context ends.
	block bool
}

func (f *fakeAPI) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.pulls++
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.created = config
	return container.CreateResponse{ID: "c1"}, nil
}

func (f *fakeAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return nil
}

func (f *fakeAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	waitCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if !f.block {
		waitCh <- container.WaitResponse{StatusCode: f.exit}
	}
	return waitCh, errCh
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	if !options.Force {
		return errors.New("expected forced removal")
	}
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeAPI) Close() error { return nil }

func TestRunner_RunsSleepAndRemovesContainer(t *testing.T) {
	api := &fakeAPI{}
	r := newRunner(api, Config{Image: "alpine:3.20", Duration: 1500 * time.Millisecond}, logger.NewNop())

	for i := 0; i < 2; i++ {
		if err := r.Run(context.Background(), domain.Job{ID: 15, Name: "x"}); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}

	if api.pulls != 1 {
		t.Errorf("expected the image to be pulled once, got %d", api.pulls)
	}
	if got := strings.Join(api.created.Cmd, " "); got != "sleep 1.5" {
		t.Errorf("unexpected command %q", got)
	}
	if api.created.Labels[labelJobID] != "15" || api.created.Labels[labelJobName] != "x" {
		t.Errorf("unexpected labels %v", api.created.Labels)
	}
	if len(api.removed) != 2 {
		t.Errorf("expected every container to be removed, got %v", api.removed)
	}
}

func TestRunner_NonZeroExitFails(t *testing.T) {
	api := &fakeAPI{exit: 137}
	r := newRunner(api, Config{Image: "alpine:3.20", Duration: time.Second}, logger.NewNop())

	err := r.Run(context.Background(), domain.Job{ID: 1})
	if err == nil || errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected a plain failure, got %v", err)
	}
}

func TestRunner_CancelIsInterruption(t *testing.T) {
	api := &fakeAPI{block: true}
	r := newRunner(api, Config{Image: "alpine:3.20", Duration: time.Minute}, logger.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx, domain.Job{ID: 1}); !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if len(api.removed) != 1 {
		t.Fatalf("expected the container to be removed after interruption, got %v", api.removed)
	}
}
