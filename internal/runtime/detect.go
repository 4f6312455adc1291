package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const systemSocket = "/var/run/docker.sock"

// orbstackSockets returns candidate socket paths for OrbStack, most
// specific first.
func orbstackSockets() []string {
	return []string{
		expandHome("~/.orbstack/run/docker.sock"),
		systemSocket,
	}
}

// dockerDesktopSockets returns candidate socket paths for Docker Desktop,
// most specific first.
func dockerDesktopSockets() []string {
	return []string{
		systemSocket,
		expandHome("~/.docker/run/docker.sock"),
		expandHome("~/Library/Containers/com.docker.docker/Data/docker.sock"),
	}
}

// Detect selects a container runtime. An explicit socket always wins. An
// explicit type restricts discovery to that flavor's sockets. Otherwise
// every known socket location is probed, OrbStack first since its socket
// is the more specific signal.
func Detect(preferred, socket string, logger zerolog.Logger) (ContainerRuntime, error) {
	if socket != "" {
		name := preferred
		if name == "" {
			name = "docker"
		}
		return NewDocker(name, socket, logger)
	}

	switch preferred {
	case "orbstack":
		return detectFlavor("orbstack", orbstackSockets(), logger)
	case "docker_desktop":
		return detectFlavor("docker_desktop", dockerDesktopSockets(), logger)
	case "docker":
		return detectFlavor("docker", []string{systemSocket}, logger)
	}

	if path, ok := discoverSocket(orbstackSockets()[:1]); ok {
		logger.Info().Str("socket", path).Msg("detected OrbStack runtime")
		return NewDocker("orbstack", path, logger)
	}
	if path, ok := discoverSocket(dockerDesktopSockets()); ok {
		logger.Info().Str("socket", path).Msg("detected Docker Desktop runtime")
		return NewDocker("docker_desktop", path, logger)
	}

	// No socket found. Fall back to the system default so the daemon can
	// still start; enforcement calls will fail until Docker is up.
	logger.Warn().Str("socket", systemSocket).Msg("no container runtime socket found, defaulting to system docker socket")
	return NewDocker("docker", systemSocket, logger)
}

func detectFlavor(name string, candidates []string, logger zerolog.Logger) (ContainerRuntime, error) {
	path, ok := discoverSocket(candidates)
	if !ok {
		return nil, fmt.Errorf("no %s socket found (tried %v)", name, candidates)
	}
	logger.Info().Str("socket", path).Str("runtime", name).Msg("container runtime selected")
	return NewDocker(name, path, logger)
}

// discoverSocket returns the first candidate path that exists.
func discoverSocket(candidates []string) (string, bool) {
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, path[2:])
}
