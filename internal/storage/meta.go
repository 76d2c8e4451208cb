package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sessionmind/memory-mcp/internal/models"
)

// ErrProjectNotFound is returned when a caller references a project the
// registry does not know.
var ErrProjectNotFound = errors.New("project not found")

// MetaStore is the project registry: a central _meta.db mapping project names
// to their isolated graph database files under projects/ (active) and
// archive/ (archived).
type MetaStore struct {
	db      *sql.DB
	dataDir string
}

// OpenMeta opens (or creates) the registry under dataDir, along with the
// projects/ and archive/ directories the graph database files live in.
func OpenMeta(dataDir string) (*MetaStore, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "projects"), filepath.Join(dataDir, "archive")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	dbPath := filepath.Join(dataDir, "_meta.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open meta db: %w", err)
	}

	if _, err := db.Exec(MetaSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate meta db: %w", err)
	}

	return &MetaStore{db: db, dataDir: dataDir}, nil
}

// Close closes the registry database.
func (m *MetaStore) Close() error {
	return m.db.Close()
}

// DataDir returns the base data directory.
func (m *MetaStore) DataDir() string {
	return m.dataDir
}

// CreateProject provisions a graph database for a new project and registers
// it. The database file is created first so a registered project always has
// an openable graph behind it.
func (m *MetaStore) CreateProject(name, description string) (*models.Project, error) {
	id := uuid.New().String()
	dbPath := filepath.Join("projects", id+".db")
	absDBPath := filepath.Join(m.dataDir, dbPath)

	if err := initGraphDB(absDBPath); err != nil {
		return nil, fmt.Errorf("init graph db for %q: %w", name, err)
	}

	_, err := m.db.Exec(
		`INSERT INTO projects (id, name, description, db_path, status) VALUES (?, ?, ?, ?, 'active')`,
		id, name, description, dbPath,
	)
	if err != nil {
		os.Remove(absDBPath)
		return nil, fmt.Errorf("register project %q: %w", name, err)
	}

	return m.GetProjectByID(id)
}

// GetProjectByName looks up a project by its unique name.
func (m *MetaStore) GetProjectByName(name string) (*models.Project, error) {
	row := m.db.QueryRow(
		`SELECT id, name, description, db_path, status, created_at, updated_at FROM projects WHERE name = ?`,
		name,
	)
	return scanProject(row)
}

// GetProjectByID looks up a project by its UUID.
func (m *MetaStore) GetProjectByID(id string) (*models.Project, error) {
	row := m.db.QueryRow(
		`SELECT id, name, description, db_path, status, created_at, updated_at FROM projects WHERE id = ?`,
		id,
	)
	return scanProject(row)
}

// ListProjects returns projects with the given status, ordered by name. Use
// "all" for no filter.
func (m *MetaStore) ListProjects(status string) ([]models.Project, error) {
	query := `SELECT id, name, description, db_path, status, created_at, updated_at FROM projects`
	var args []any
	if status != "all" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.DBPath, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ArchiveProject marks a project archived and moves its graph database from
// projects/ to archive/. The project's graph store must be closed first.
func (m *MetaStore) ArchiveProject(name string) (*models.Project, error) {
	proj, err := m.GetProjectByName(name)
	if err != nil {
		return nil, err
	}
	if proj.Status == "archived" {
		return nil, fmt.Errorf("project %q is already archived", name)
	}
	return m.moveProjectDB(proj, "archive", "archived")
}

// RestoreProject moves an archived project's graph database back under
// projects/ and marks it active.
func (m *MetaStore) RestoreProject(name string) (*models.Project, error) {
	proj, err := m.GetProjectByName(name)
	if err != nil {
		return nil, err
	}
	if proj.Status != "archived" {
		return nil, fmt.Errorf("project %q is not archived", name)
	}
	return m.moveProjectDB(proj, "projects", "active")
}

// moveProjectDB relocates a project's graph database into destDir and
// records the new path and status. The file move is undone if the registry
// update fails.
func (m *MetaStore) moveProjectDB(proj *models.Project, destDir, status string) (*models.Project, error) {
	oldPath := filepath.Join(m.dataDir, proj.DBPath)
	newRelPath := filepath.Join(destDir, filepath.Base(proj.DBPath))
	newPath := filepath.Join(m.dataDir, newRelPath)

	if err := os.Rename(oldPath, newPath); err != nil {
		return nil, fmt.Errorf("move graph db for %q: %w", proj.Name, err)
	}

	_, err := m.db.Exec(
		`UPDATE projects SET status = ?, db_path = ?, updated_at = datetime('now') WHERE id = ?`,
		status, newRelPath, proj.ID,
	)
	if err != nil {
		os.Rename(newPath, oldPath)
		return nil, fmt.Errorf("update project %q: %w", proj.Name, err)
	}

	return m.GetProjectByID(proj.ID)
}

// DeleteProject permanently removes a project's registry entry and its graph
// database file. The project's graph store must be closed first.
func (m *MetaStore) DeleteProject(name string) error {
	proj, err := m.GetProjectByName(name)
	if err != nil {
		return err
	}

	absDBPath := filepath.Join(m.dataDir, proj.DBPath)
	os.Remove(absDBPath)
	os.Remove(absDBPath + "-wal")
	os.Remove(absDBPath + "-shm")

	if _, err := m.db.Exec(`DELETE FROM projects WHERE id = ?`, proj.ID); err != nil {
		return fmt.Errorf("delete project %q: %w", name, err)
	}
	return nil
}

// ProjectDBPath returns the absolute path to a project's graph database.
func (m *MetaStore) ProjectDBPath(proj *models.Project) string {
	return filepath.Join(m.dataDir, proj.DBPath)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DBPath, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

// initGraphDB provisions a fresh graph database: entities with embedding
// blobs, relations with the unique-triple index, memories, and the FTS5
// mirrors with their sync triggers.
func initGraphDB(dbPath string) error {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return err
	}
	defer db.Close()

	for _, ddl := range []string{GraphSchema, GraphTriggers} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("provision graph schema: %w", err)
		}
	}
	return nil
}
