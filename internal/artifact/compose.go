package artifact

import (
	"context"
	"fmt"

	"github.com/compose-spec/compose-go/v2/loader"
	compose "github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"

	"gridup"
)

// Container images for the coordinator half-stack. Exported so the
// orchestrator can pre-fetch them.
const (
	StateDBImage = "postgres:16.3-alpine"
	CacheImage   = "redis:7.2-alpine"
)

// composeFile is the subset of the compose format the half-stack needs.
// Rendered from typed values and then re-parsed with the compose loader so
// a malformed artifact fails the run instead of failing at service start.
type composeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]composeService `yaml:"services"`
	Volumes  map[string]composeVolume  `yaml:"volumes"`
}

type composeService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	Restart       string            `yaml:"restart"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	Ports         []string          `yaml:"ports"`
	Volumes       []string          `yaml:"volumes,omitempty"`
}

type composeVolume struct{}

// halfstack builds the compose model for the coordinator's state services.
// The auth values come from the run's secret bundle; the manager artifact
// carries the same values verbatim.
func halfstack(in Inputs) composeFile {
	bind := in.BindAddr()

	return composeFile{
		Name: "gridup-halfstack",
		Services: map[string]composeService{
			"statedb": {
				Image:         StateDBImage,
				ContainerName: "gridup-statedb",
				Restart:       "unless-stopped",
				Environment: map[string]string{
					"POSTGRES_USER":     "gridup",
					"POSTGRES_PASSWORD": in.Secrets.DBPassword,
					"POSTGRES_DB":       "gridup",
				},
				Ports:   []string{fmt.Sprintf("%s:%d:5432", bind, in.Config.Ports.StateDB)},
				Volumes: []string{"statedb-data:/var/lib/postgresql/data"},
			},
			"cache": {
				Image:         CacheImage,
				ContainerName: "gridup-cache",
				Restart:       "unless-stopped",
				Command:       []string{"redis-server", "--requirepass", in.Secrets.CachePassword},
				Ports:         []string{fmt.Sprintf("%s:%d:6379", bind, in.Config.Ports.Cache)},
			},
		},
		Volumes: map[string]composeVolume{
			"statedb-data": {},
		},
	}
}

// validateCompose round-trips the rendered bytes through the compose
// loader. A parse failure here means the template model and the compose
// format have drifted apart, which is a configuration error, not a user
// mistake.
func validateCompose(ctx context.Context, data []byte) error {
	details := compose.ConfigDetails{
		ConfigFiles: []compose.ConfigFile{
			{Filename: ComposeArtifact, Content: data},
		},
	}
	project, err := loader.LoadWithContext(ctx, details)
	if err != nil {
		return fmt.Errorf("%w: rendered compose artifact does not parse: %v", gridup.ErrConfiguration, err)
	}
	if len(project.Services) == 0 {
		return fmt.Errorf("%w: rendered compose artifact has no services", gridup.ErrConfiguration)
	}
	// Re-check the bindings with the engine's own port parser: the loader
	// accepts some specs the daemon later rejects.
	for name, svc := range project.Services {
		for _, p := range svc.Ports {
			spec := fmt.Sprintf("%s:%s:%d", p.HostIP, p.Published, p.Target)
			if _, err := nat.ParsePortSpec(spec); err != nil {
				return fmt.Errorf("%w: service %s port binding %q: %v", gridup.ErrConfiguration, name, spec, err)
			}
		}
	}
	return nil
}
