package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// TargetSpec is one sampling target in the targets file.
type TargetSpec struct {
	Provider    string `yaml:"provider" validate:"required,oneof=kmb ctb nlb mtr_bus mtr_lrt mtr_train"`
	Route       string `yaml:"route" validate:"required"`
	Stop        string `yaml:"stop" validate:"required"`
	Direction   string `yaml:"direction" validate:"required,oneof=outbound inbound"`
	ServiceType string `yaml:"service_type"`
}

type targetsFile struct {
	Targets []TargetSpec `yaml:"targets"`
}

// LoadTargets reads and validates the sampling targets file, returning the
// queries the sampler will watch.
func LoadTargets(path string) ([]eta.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}

	v := validator.New()
	queries := make([]eta.Query, 0, len(file.Targets))
	for i, target := range file.Targets {
		if err := v.Struct(target); err != nil {
			return nil, fmt.Errorf("invalid target %d: %w", i+1, err)
		}
		provider, err := eta.ParseProvider(target.Provider)
		if err != nil {
			return nil, fmt.Errorf("invalid target %d: %w", i+1, err)
		}
		direction, err := eta.ParseDirection(target.Direction)
		if err != nil {
			return nil, fmt.Errorf("invalid target %d: %w", i+1, err)
		}
		queries = append(queries, eta.Query{
			Provider:    provider,
			Route:       target.Route,
			Stop:        target.Stop,
			Direction:   direction,
			ServiceType: target.ServiceType,
		})
	}
	return queries, nil
}
