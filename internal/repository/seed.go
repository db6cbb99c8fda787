package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"robot_control/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadTopologyFile reads a topology from YAML.
func LoadTopologyFile(path string) (models.Topology, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Topology{}, fmt.Errorf("read topology seed: %w", err)
	}
	var top models.Topology
	if err := yaml.Unmarshal(b, &top); err != nil {
		return models.Topology{}, fmt.Errorf("parse topology seed %s: %w", path, err)
	}
	return top, nil
}

// EnsureTopology returns the stored topology of robot. When none is stored
// it loads the seed file, renames it to robot, saves and returns it.
func EnsureTopology(ctx context.Context, repo TopologyRepo, robot, seedPath string) (models.Topology, bool, error) {
	top, err := repo.Load(ctx, robot)
	if err == nil {
		return top, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Topology{}, false, err
	}

	top, err = LoadTopologyFile(seedPath)
	if err != nil {
		return models.Topology{}, false, err
	}
	top.Robot = robot
	if err := repo.Save(ctx, top); err != nil {
		return models.Topology{}, false, err
	}
	return top, true, nil
}
