package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sessionmind/memory-mcp/internal/models"
)

func tempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func openMeta(t *testing.T) (*MetaStore, string) {
	t.Helper()
	dir := tempDir(t)
	meta, err := OpenMeta(dir)
	if err != nil {
		t.Fatalf("OpenMeta: %v", err)
	}
	t.Cleanup(func() { meta.Close() })
	return meta, dir
}

func TestOpenMetaCreatesLayout(t *testing.T) {
	_, dir := openMeta(t)

	for _, name := range []string{"projects", "archive", "_meta.db"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should exist after OpenMeta: %v", name, err)
		}
	}
}

func TestCreateProject(t *testing.T) {
	meta, dir := openMeta(t)

	proj, err := meta.CreateProject("assistant", "session memory for the assistant")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if proj.ID == "" {
		t.Error("ID should be assigned")
	}
	if proj.Status != "active" {
		t.Errorf("Status = %q, want active", proj.Status)
	}
	if proj.Description != "session memory for the assistant" {
		t.Errorf("Description = %q", proj.Description)
	}
	if _, err := os.Stat(filepath.Join(dir, proj.DBPath)); err != nil {
		t.Errorf("graph db should exist at %s: %v", proj.DBPath, err)
	}

	byName, err := meta.GetProjectByName("assistant")
	if err != nil {
		t.Fatalf("GetProjectByName: %v", err)
	}
	byID, err := meta.GetProjectByID(proj.ID)
	if err != nil {
		t.Fatalf("GetProjectByID: %v", err)
	}
	if byName.ID != proj.ID || byID.Name != proj.Name {
		t.Errorf("lookups disagree: byName.ID=%q byID.Name=%q", byName.ID, byID.Name)
	}
}

func TestCreateProjectDuplicateName(t *testing.T) {
	meta, dir := openMeta(t)

	if _, err := meta.CreateProject("dup", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := meta.CreateProject("dup", ""); err == nil {
		t.Fatal("duplicate project name should fail")
	}

	// The failed create must not leave an orphan graph db behind.
	entries, err := os.ReadDir(filepath.Join(dir, "projects"))
	if err != nil {
		t.Fatal(err)
	}
	var dbs int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".db" {
			dbs++
		}
	}
	if dbs != 1 {
		t.Errorf("projects/ holds %d db files, want 1", dbs)
	}
}

func TestProjectNotFound(t *testing.T) {
	meta, _ := openMeta(t)

	if _, err := meta.GetProjectByName("ghost"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("GetProjectByName error = %v, want ErrProjectNotFound", err)
	}
	if _, err := meta.GetProjectByID("no-such-id"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("GetProjectByID error = %v, want ErrProjectNotFound", err)
	}
	if _, err := meta.ArchiveProject("ghost"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("ArchiveProject error = %v, want ErrProjectNotFound", err)
	}
}

func TestListProjects(t *testing.T) {
	meta, _ := openMeta(t)

	meta.CreateProject("alpha", "")
	meta.CreateProject("beta", "")
	if _, err := meta.ArchiveProject("beta"); err != nil {
		t.Fatal(err)
	}

	active, err := meta.ListProjects("active")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Name != "alpha" {
		t.Errorf("active = %v, want [alpha]", active)
	}

	archived, err := meta.ListProjects("archived")
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].Name != "beta" {
		t.Errorf("archived = %v, want [beta]", archived)
	}

	all, err := meta.ListProjects("all")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d projects, want 2", len(all))
	}
}

func TestArchiveAndRestoreProject(t *testing.T) {
	meta, dir := openMeta(t)
	meta.CreateProject("rotating", "")

	archived, err := meta.ArchiveProject("rotating")
	if err != nil {
		t.Fatalf("ArchiveProject: %v", err)
	}
	if archived.Status != "archived" {
		t.Errorf("Status = %q, want archived", archived.Status)
	}
	if filepath.Dir(archived.DBPath) != "archive" {
		t.Errorf("DBPath = %q, want it under archive/", archived.DBPath)
	}
	if _, err := os.Stat(filepath.Join(dir, archived.DBPath)); err != nil {
		t.Errorf("archived graph db missing: %v", err)
	}

	if _, err := meta.ArchiveProject("rotating"); err == nil {
		t.Error("archiving an archived project should fail")
	}

	restored, err := meta.RestoreProject("rotating")
	if err != nil {
		t.Fatalf("RestoreProject: %v", err)
	}
	if restored.Status != "active" {
		t.Errorf("Status = %q, want active", restored.Status)
	}
	if filepath.Dir(restored.DBPath) != "projects" {
		t.Errorf("DBPath = %q, want it under projects/", restored.DBPath)
	}
	if _, err := os.Stat(filepath.Join(dir, restored.DBPath)); err != nil {
		t.Errorf("restored graph db missing: %v", err)
	}

	if _, err := meta.RestoreProject("rotating"); err == nil {
		t.Error("restoring an active project should fail")
	}
}

func TestDeleteProject(t *testing.T) {
	meta, dir := openMeta(t)

	proj, err := meta.CreateProject("doomed", "")
	if err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, proj.DBPath)

	if err := meta.DeleteProject("doomed"); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Error("graph db file should be removed")
	}
	if _, err := meta.GetProjectByName("doomed"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("lookup after delete = %v, want ErrProjectNotFound", err)
	}
}

// A freshly created project database must carry the full graph schema:
// entities with embedding blobs, the unique relation triple, memories and
// their FTS mirror.
func TestCreateProjectProvisionsGraphSchema(t *testing.T) {
	meta, _ := openMeta(t)

	proj, err := meta.CreateProject("provisioned", "")
	if err != nil {
		t.Fatal(err)
	}
	graph, err := OpenGraph(meta.ProjectDBPath(proj))
	if err != nil {
		t.Fatalf("OpenGraph: %v", err)
	}
	defer graph.Close()

	vec := []float32{0.6, 0.8}
	auth, err := graph.CreateEntity("auth-service", "service", []string{"handles login"}, vec)
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	got, err := graph.GetEntityByID(auth.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.6 {
		t.Errorf("embedding round trip = %v, want %v", got.Embedding, vec)
	}

	db, err := graph.CreateEntity("postgres", "database", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, created, err := graph.CreateRelation(auth.ID, db.ID, "uses", models.ConfidenceHigh, models.ManualProperties()); err != nil || !created {
		t.Fatalf("CreateRelation: created=%v err=%v", created, err)
	}
	if _, created, err := graph.CreateRelation(auth.ID, db.ID, "uses", models.ConfidenceHigh, models.ManualProperties()); err != nil || created {
		t.Fatalf("duplicate triple: created=%v err=%v, want no-op", created, err)
	}

	if _, err := graph.StoreMemory("auth rollout went fine", proj.Name, nil, nil, nil); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	hits, err := graph.SearchMemoriesText("rollout", 5)
	if err != nil {
		t.Fatalf("SearchMemoriesText: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("text search hits = %d, want 1", len(hits))
	}
}
