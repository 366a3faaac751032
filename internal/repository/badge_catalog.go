package repository

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/lifescope-insights/internal/config"
	"github.com/aimd54/lifescope-insights/internal/models"
)

type badgeCatalogFile struct {
	Badges []config.BadgeConfig `yaml:"badges"`
}

// LoadBadgeCatalog reads a standalone YAML badge catalog.
func LoadBadgeCatalog(path string) ([]config.BadgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badge catalog: %w", err)
	}

	var file badgeCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse badge catalog: %w", err)
	}
	return file.Badges, nil
}

// SeedBadges upserts every catalog entry by code. Running it again with the
// same catalog changes nothing but updated_at.
func SeedBadges(ctx context.Context, repo *BadgeRepository, catalog []config.BadgeConfig) error {
	for _, entry := range catalog {
		badge := &models.Badge{
			Code:            entry.Code,
			Name:            entry.Name,
			Description:     entry.Description,
			Icon:            entry.Icon,
			ConditionType:   entry.ConditionType,
			ConditionMetric: entry.ConditionMetric,
			ConditionValue:  entry.ConditionValue,
		}
		if err := repo.UpsertByCode(ctx, badge); err != nil {
			return fmt.Errorf("seed badge %q: %w", entry.Code, err)
		}
	}
	return nil
}
