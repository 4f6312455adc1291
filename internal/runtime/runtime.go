// Package runtime provides the container runtime capability the enforcement
// engine acts through: killing containers, detaching them from networks,
// and inspecting or listing them. One concrete implementation talks to the
// Docker Engine API; runtime flavors (Docker Desktop, OrbStack) differ only
// in where their socket lives, which Detect resolves at startup.
package runtime

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a target container does not exist.
var ErrNotFound = errors.New("container not found")

// ContainerInfo describes one container.
type ContainerInfo struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Status string            `json:"status"`
	Labels map[string]string `json:"labels,omitempty"`
}

// ContainerRuntime is the capability surface the action dispatcher invokes.
// Implementations must report failure through the error return and never
// panic; all calls honor the caller's context deadline.
type ContainerRuntime interface {
	// Name identifies the runtime flavor ("docker", "docker_desktop", "orbstack").
	Name() string

	// Kill forcibly terminates the container.
	Kill(ctx context.Context, containerID string) error

	// Quarantine detaches the container from all of its networks and
	// returns how many were detached. A container with zero attachments
	// detaches nothing and is not an error.
	Quarantine(ctx context.Context, containerID string) (int, error)

	// Inspect returns information about one container, or ErrNotFound.
	Inspect(ctx context.Context, containerID string) (*ContainerInfo, error)

	// List returns all running containers.
	List(ctx context.Context) ([]ContainerInfo, error)
}
