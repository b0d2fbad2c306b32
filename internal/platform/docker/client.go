// Package docker runs job bodies inside ephemeral containers.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	labelJobID   = "jobstream.job.id"
	labelJobName = "jobstream.job.name"

	// memoryLimit caps each container through cgroups.
	memoryLimit = 64 * 1024 * 1024
)

// containerAPI is the part of the Docker SDK client the runner needs.
type containerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Config configures the container runner.
type Config struct {
	Image string
	// Duration is how long the placeholder body sleeps inside the container.
	Duration time.Duration
}

// Runner implements domain.Runner by running `sleep <duration>` in a fresh container per job.
type Runner struct {
	cli   containerAPI
	cfg   Config
	log   logger.Logger

	mu    sync.Mutex
	pulls map[string]bool
}

var _ domain.Runner = (*Runner)(nil)

// NewRunner connects to the Docker daemon from the environment and verifies it with a ping.
func NewRunner(ctx context.Context, cfg Config, log logger.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	log.Info("Docker client initialized", "image", cfg.Image)
	return newRunner(cli, cfg, log), nil
}

func newRunner(cli containerAPI, cfg Config, log logger.Logger) *Runner {
	return &Runner{cli: cli, cfg: cfg, log: log, pulls: make(map[string]bool)}
}

// Run executes the job body. Cancelling ctx force-removes the container and yields
// domain.ErrInterrupted. A non-zero exit status is a failure.
func (r *Runner) Run(ctx context.Context, job domain.Job) error {
	if err := r.pull(ctx); err != nil {
		return r.wrap(ctx, err)
	}

	seconds := strconv.FormatFloat(r.cfg.Duration.Seconds(), 'f', -1, 64)
	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image: r.cfg.Image,
		Cmd:   []string{"sleep", seconds},
		Labels: map[string]string{
			labelJobID:   strconv.FormatInt(job.ID, 10),
			labelJobName: job.Name,
		},
	}, &container.HostConfig{
		Resources: container.Resources{Memory: memoryLimit},
	}, nil, nil, "jobstream-"+uuid.NewString())
	if err != nil {
		return r.wrap(ctx, fmt.Errorf("failed to create container: %w", err))
	}
	defer r.remove(resp.ID)

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return r.wrap(ctx, fmt.Errorf("failed to start container: %w", err))
	}
	r.log.Debug("Container started", "containerID", resp.ID, "job", job.String())

	waitCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
	case err := <-errCh:
		return r.wrap(ctx, fmt.Errorf("failed waiting for container: %w", err))
	case status := <-waitCh:
		if status.Error != nil {
			return fmt.Errorf("container %s: %s", resp.ID, status.Error.Message)
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("container %s exited with status %d", resp.ID, status.StatusCode)
		}
		return nil
	}
}

// pull fetches the image once per runner.
func (r *Runner) pull(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pulls[r.cfg.Image] {
		return nil
	}
	r.log.Info("Pulling image", "image", r.cfg.Image)
	reader, err := r.cli.ImagePull(ctx, r.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	r.pulls[r.cfg.Image] = true
	return nil
}

func (r *Runner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		r.log.Warn("Failed to remove container", "containerID", id, "error", err)
	}
}

// wrap turns failures caused by cancellation into interruptions.
func (r *Runner) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, domain.ErrInterrupted) {
		return fmt.Errorf("%w: %v", domain.ErrInterrupted, err)
	}
	return err
}

// Close releases the Docker client.
func (r *Runner) Close() error {
	return r.cli.Close()
}
