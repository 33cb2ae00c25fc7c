package db

import (
	"testing"
	"time"

	"github.com/kirsle/configdir"
)

// testDB opens the store against a throwaway config directory.
func testDB(t *testing.T) *DB {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	configdir.Refresh()
	t.Cleanup(configdir.Refresh)

	database, err := InitDB()
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSaveAndUpdateJobStatus(t *testing.T) {
	database := testDB(t)

	job := &Job{
		ID:            "serve-solar-20250101_120000",
		Name:          "serve-solar",
		Model:         "upstage/solar-pro",
		Nodes:         2,
		LogPath:       "/logs/serve-solar.log",
		InventoryPath: "/access_info/upstage/solar-pro.json",
		Status:        StatusSubmitted,
		CreatedAt:     time.Now(),
	}
	if err := database.SaveJob(job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	for _, status := range []string{StatusTimedOut, StatusReady} {
		if err := database.UpdateJobStatus(job.ID, status); err != nil {
			t.Fatalf("UpdateJobStatus(%s) failed: %v", status, err)
		}
		got, err := database.GetJob(job.ID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status != status {
			t.Errorf("status = %q, want %q", got.Status, status)
		}
	}
}

func TestLatestJobForModel(t *testing.T) {
	database := testDB(t)

	for i, id := range []string{"j-1", "j-2"} {
		job := &Job{
			ID:        id,
			Name:      "j",
			Model:     "m",
			Nodes:     1,
			Status:    StatusSubmitted,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := database.SaveJob(job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}

	got, err := database.LatestJobForModel("m")
	if err != nil {
		t.Fatalf("LatestJobForModel failed: %v", err)
	}
	if got.ID != "j-2" {
		t.Errorf("latest job = %s, want j-2", got.ID)
	}
}
