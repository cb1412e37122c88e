package dbmigrate

import (
	"fmt"

	"github.com/fdg312/nutrition-engine/internal/config"
)

// DefaultMigrationsDir is the directory inside the embedded FS.
const DefaultMigrationsDir = "migrations"

type urlCandidate struct {
	source  string
	url     string
	warning string
}

// SelectDatabaseURL picks the connection used for DDL.
// Order: DATABASE_URL_DIRECT, DATABASE_URL, then DATABASE_URL_POOLED with a warning.
// requireDirect accepts only DATABASE_URL_DIRECT.
func SelectDatabaseURL(cfg *config.Config, requireDirect bool) (dbURL string, source string, warning string, err error) {
	candidates := []urlCandidate{
		{source: "DATABASE_URL_DIRECT", url: cfg.DatabaseURLDirect},
	}
	if !requireDirect {
		candidates = append(candidates,
			urlCandidate{source: "DATABASE_URL", url: cfg.DatabaseURLRaw},
			urlCandidate{
				source:  "DATABASE_URL_POOLED",
				url:     cfg.DatabaseURLPooled,
				warning: "pooled connections may break goose session locks; set DATABASE_URL_DIRECT",
			},
		)
	}

	for _, c := range candidates {
		if c.url != "" {
			return c.url, c.source, c.warning, nil
		}
	}

	if requireDirect {
		return "", "", "", fmt.Errorf("DATABASE_URL_DIRECT is required for migrations")
	}
	return "", "", "", fmt.Errorf("no database URL configured (set DATABASE_URL_DIRECT or DATABASE_URL)")
}
