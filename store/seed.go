package store

import (
	"context"
	_ "embed"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed seed/agents.yaml
var defaultAgentsYAML []byte

type agentSeedFile struct {
	Agents []*Agent `yaml:"agents"`
}

// SeedAgents fills an empty agent table from the YAML file at path, or from
// the built-in presets when path is empty. Existing agents are left alone.
func (s *Store) SeedAgents(ctx context.Context, path string) (int, error) {
	existing, err := s.ListAgents(ctx, &FindAgent{})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list agents")
	}
	if len(existing) > 0 {
		return 0, nil
	}

	data := defaultAgentsYAML
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read agents file %s", path)
		}
	}

	agents, err := ParseAgents(data)
	if err != nil {
		return 0, err
	}
	for _, agent := range agents {
		if _, err := s.CreateAgent(ctx, agent); err != nil {
			return 0, errors.Wrapf(err, "failed to seed agent %s", agent.UID)
		}
	}

	slog.Info("seeded agent presets", "count", len(agents), "source", sourceName(path))
	return len(agents), nil
}

// ParseAgents decodes an agents YAML document.
func ParseAgents(data []byte) ([]*Agent, error) {
	var file agentSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(ErrCorrupted, err.Error())
	}
	for i, agent := range file.Agents {
		if agent == nil || agent.UID == "" || agent.Name == "" {
			return nil, errors.Wrapf(ErrCorrupted, "agent #%d needs a uid and a name", i+1)
		}
	}
	return file.Agents, nil
}

func sourceName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}
