package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/rs/zerolog"
)

// Docker is a ContainerRuntime backed by the Docker Engine API over a local
// unix socket. All Docker-compatible flavors share this implementation and
// differ only in name and socket path.
type Docker struct {
	name   string
	socket string
	cli    *client.Client
	logger zerolog.Logger
}

// NewDocker creates a Docker runtime for the given socket path.
func NewDocker(name, socket string, logger zerolog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+socket),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker client for %s: %w", socket, err)
	}
	return &Docker{
		name:   name,
		socket: socket,
		cli:    cli,
		logger: logger.With().Str("component", "runtime").Str("runtime", name).Logger(),
	}, nil
}

// Name returns the runtime flavor name.
func (d *Docker) Name() string { return d.name }

// Socket returns the socket path the client is connected to.
func (d *Docker) Socket() string { return d.socket }

// Kill sends SIGKILL to the container.
func (d *Docker) Kill(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("killing container %s: %w", shortID(containerID), ErrNotFound)
		}
		return fmt.Errorf("killing container %s: %w", shortID(containerID), err)
	}
	d.logger.Info().Str("container_id", shortID(containerID)).Msg("container killed")
	return nil
}

// Quarantine disconnects the container from every network it is attached
// to, forcing the disconnect so in-use endpoints are removed as well.
func (d *Docker) Quarantine(ctx context.Context, containerID string) (int, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return 0, fmt.Errorf("quarantining container %s: %w", shortID(containerID), ErrNotFound)
		}
		return 0, fmt.Errorf("inspecting container %s: %w", shortID(containerID), err)
	}

	if inspect.NetworkSettings == nil || len(inspect.NetworkSettings.Networks) == 0 {
		d.logger.Info().
			Str("container_id", shortID(containerID)).
			Msg("container has no network attachments, nothing to detach")
		return 0, nil
	}

	detached := 0
	var lastErr error
	for netName, endpoint := range inspect.NetworkSettings.Networks {
		netID := endpoint.NetworkID
		if netID == "" {
			netID = netName
		}
		if err := d.cli.NetworkDisconnect(ctx, netID, containerID, true); err != nil {
			d.logger.Error().Err(err).
				Str("container_id", shortID(containerID)).
				Str("network", netName).
				Msg("failed to disconnect network")
			lastErr = err
			continue
		}
		detached++
	}

	if detached == 0 {
		return 0, fmt.Errorf("no networks detached from container %s: %w", shortID(containerID), lastErr)
	}
	d.logger.Info().
		Str("container_id", shortID(containerID)).
		Int("networks_detached", detached).
		Msg("container quarantined")
	return detached, nil
}

// Inspect returns information about one container.
func (d *Docker) Inspect(ctx context.Context, containerID string) (*ContainerInfo, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inspecting container %s: %w", shortID(containerID), err)
	}

	info := &ContainerInfo{
		ID:   inspect.ID,
		Name: strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.Config != nil {
		info.Image = inspect.Config.Image
		info.Labels = inspect.Config.Labels
	}
	if inspect.State != nil {
		info.Status = inspect.State.Status
	}
	return info, nil
}

// List returns all running containers.
func (d *Docker) List(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, ContainerInfo{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			Status: c.State,
			Labels: c.Labels,
		})
	}
	return out, nil
}

// Close releases the underlying client.
func (d *Docker) Close() error {
	return d.cli.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
