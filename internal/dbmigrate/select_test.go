package dbmigrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/fdg312/nutrition-engine/internal/config"
)

func TestSelectDatabaseURL(t *testing.T) {
	tests := []struct {
		name          string
		cfg           config.Config
		requireDirect bool
		wantURL       string
		wantSource    string
		wantWarning   bool
		wantErr       bool
	}{
		{
			name:       "direct wins",
			cfg:        config.Config{DatabaseURLDirect: "postgres://direct", DatabaseURLRaw: "postgres://url", DatabaseURLPooled: "postgres://pooled"},
			wantURL:    "postgres://direct",
			wantSource: "DATABASE_URL_DIRECT",
		},
		{
			name:       "database url before pooled",
			cfg:        config.Config{DatabaseURLRaw: "postgres://url", DatabaseURLPooled: "postgres://pooled"},
			wantURL:    "postgres://url",
			wantSource: "DATABASE_URL",
		},
		{
			name:        "pooled with warning",
			cfg:         config.Config{DatabaseURLPooled: "postgres://pooled"},
			wantURL:     "postgres://pooled",
			wantSource:  "DATABASE_URL_POOLED",
			wantWarning: true,
		},
		{
			name:          "require direct",
			cfg:           config.Config{DatabaseURLRaw: "postgres://url"},
			requireDirect: true,
			wantErr:       true,
		},
		{
			name:    "nothing configured",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			dbURL, source, warning, err := SelectDatabaseURL(&cfg, tt.requireDirect)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dbURL != tt.wantURL || source != tt.wantSource {
				t.Fatalf("expected %s/%s, got %s/%s", tt.wantURL, tt.wantSource, dbURL, source)
			}
			if (warning != "") != tt.wantWarning {
				t.Fatalf("unexpected warning state: %q", warning)
			}
		})
	}
}

func TestEmbeddedMigrationsDeclareUniqueKeys(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, DefaultMigrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}

	var all strings.Builder
	for _, e := range entries {
		data, err := fs.ReadFile(Migrations, DefaultMigrationsDir+"/"+e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if !strings.Contains(string(data), "-- +goose Up") || !strings.Contains(string(data), "-- +goose Down") {
			t.Fatalf("%s is missing goose annotations", e.Name())
		}
		all.Write(data)
	}

	schema := all.String()
	for _, want := range []string{
		"UNIQUE (plan_id, day_index)",
		"ON intake_records (patient_id, meal_id, intake_day)",
		"UNIQUE (calendar_id, delivery_date, meal_id)",
		"PRIMARY KEY (event_type, entity_id, entity_type, recipient_id)",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("expected schema to contain %q", want)
		}
	}
}
