package probes

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

var _ domain.ProbeDirectory = (*FileDirectory)(nil)

type fileDoc struct {
	Probes []domain.Probe `yaml:"probes"`
}

// FileDirectory serves a fixed probe list read once from a YAML file.
type FileDirectory struct {
	probes []domain.Probe
}

func LoadFile(path string) (*FileDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read probes file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*FileDirectory, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse probes: %w", err)
	}
	seenID := make(map[int64]struct{}, len(doc.Probes))
	seenName := make(map[string]struct{}, len(doc.Probes))
	for _, p := range doc.Probes {
		if p.Name == "" {
			return nil, fmt.Errorf("probe %d has no name", p.ID)
		}
		if _, ok := seenID[p.ID]; ok {
			return nil, fmt.Errorf("duplicate probe id %d", p.ID)
		}
		if _, ok := seenName[p.Name]; ok {
			return nil, fmt.Errorf("duplicate probe name %q", p.Name)
		}
		seenID[p.ID] = struct{}{}
		seenName[p.Name] = struct{}{}
	}
	return &FileDirectory{probes: doc.Probes}, nil
}

func (d *FileDirectory) ListProbes(context.Context) ([]domain.Probe, error) {
	out := make([]domain.Probe, len(d.probes))
	copy(out, d.probes)
	return out, nil
}
