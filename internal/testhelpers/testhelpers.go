// Package testhelpers builds migrated databases and sample payloads for tests.
package testhelpers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/storage"
)

// SQLiteDB returns a migrated in-memory database closed at test cleanup.
func SQLiteDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.NewDB(context.Background(), storage.DefaultDBConfig())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return db
}

// DowntownOffice is a valid building payload.
func DowntownOffice() features.Raw {
	return features.Raw{
		"ENERGYSTARScore":        json.Number("75"),
		"NumberofBuildings":      json.Number("1"),
		"NumberofFloors":         json.Number("12"),
		"PropertyGFATotal":       json.Number("350000"),
		"YearBuilt":              json.Number("1998"),
		"BuildingType":           "NonResidential",
		"PrimaryPropertyType":    "Office",
		"LargestPropertyUseType": "Office",
		"Neighborhood":           "DOWNTOWN",
	}
}

// DowntownOfficeJSON is DowntownOffice as a request body.
const DowntownOfficeJSON = `{
	"ENERGYSTARScore": 75,
	"NumberofBuildings": 1,
	"NumberofFloors": 12,
	"PropertyGFATotal": 350000,
	"YearBuilt": 1998,
	"BuildingType": "NonResidential",
	"PrimaryPropertyType": "Office",
	"LargestPropertyUseType": "Office",
	"Neighborhood": "DOWNTOWN"
}`

// Record validates DowntownOffice with the given overrides; nil values delete keys.
func Record(t *testing.T, overrides features.Raw) features.Record {
	t.Helper()
	raw := DowntownOffice()
	for k, v := range overrides {
		if v == nil {
			delete(raw, k)
			continue
		}
		raw[k] = v
	}
	rec, err := features.NewValidator().Validate(raw)
	if err != nil {
		t.Fatalf("invalid test record: %v", err)
	}
	return rec
}

// FixedClock returns a clock pinned to t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
