package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sessionmind/memory-mcp/internal/models"
)

// ErrEntityNotFound is returned when a caller references an entity that does
// not exist (or was deleted). It is fatal to the single call only.
var ErrEntityNotFound = errors.New("entity not found")

// GraphStore manages a single project's knowledge graph database: entities,
// their observations, typed relations between them, and unstructured memory
// records. It enforces the referential and uniqueness invariants the schema
// alone does not.
type GraphStore struct {
	db *sql.DB
}

// OpenGraph opens an existing graph database and configures it. Transactions
// take the write lock up front so check-then-insert sequences are not
// interleaved across connections.
func OpenGraph(dbPath string) (*GraphStore, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping graph db: %w", err)
	}
	return &GraphStore{db: db}, nil
}

// Close closes the graph database connection.
func (g *GraphStore) Close() error {
	return g.db.Close()
}

// CreateEntity inserts one entity with its initial observations and optional
// embedding, and returns it with generated IDs and timestamps.
func (g *GraphStore) CreateEntity(name, entityType string, observations []string, embedding []float32) (*models.Entity, error) {
	tx, err := g.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	entityID := uuid.New().String()
	_, err = tx.Exec(
		`INSERT INTO entities (id, name, entity_type, embedding) VALUES (?, ?, ?, ?)`,
		entityID, name, entityType, encodeVector(embedding),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entity %q: %w", name, err)
	}

	entity := &models.Entity{
		ID:         entityID,
		Name:       name,
		EntityType: entityType,
		Embedding:  embedding,
	}

	for _, content := range observations {
		obsID := uuid.New().String()
		_, err := tx.Exec(
			`INSERT INTO observations (id, entity_id, content) VALUES (?, ?, ?)`,
			obsID, entityID, content,
		)
		if err != nil {
			return nil, fmt.Errorf("insert observation for %q: %w", name, err)
		}
		entity.Observations = append(entity.Observations, models.Observation{
			ID:       obsID,
			EntityID: entityID,
			Content:  content,
		})
	}

	row := tx.QueryRow(`SELECT created_at, updated_at FROM entities WHERE id = ?`, entityID)
	row.Scan(&entity.CreatedAt, &entity.UpdatedAt)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return entity, nil
}

// AddObservations appends observations to an existing entity identified by
// name. Entities are append-only: this and UpdateEntityEmbedding are the
// only mutations after creation.
func (g *GraphStore) AddObservations(entityName string, contents []string) ([]models.Observation, error) {
	entity, err := g.GetEntityByName(entityName)
	if err != nil {
		return nil, err
	}

	tx, err := g.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var created []models.Observation
	for _, content := range contents {
		obsID := uuid.New().String()
		_, err := tx.Exec(
			`INSERT INTO observations (id, entity_id, content) VALUES (?, ?, ?)`,
			obsID, entity.ID, content,
		)
		if err != nil {
			return nil, fmt.Errorf("insert observation: %w", err)
		}
		created = append(created, models.Observation{
			ID:       obsID,
			EntityID: entity.ID,
			Content:  content,
		})
	}

	_, err = tx.Exec(`UPDATE entities SET updated_at = datetime('now') WHERE id = ?`, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("touch entity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	for i, obs := range created {
		g.db.QueryRow(`SELECT created_at FROM observations WHERE id = ?`, obs.ID).Scan(&created[i].CreatedAt)
	}
	return created, nil
}

// UpdateEntityEmbedding refreshes an entity's stored vector.
func (g *GraphStore) UpdateEntityEmbedding(entityID string, embedding []float32) error {
	result, err := g.db.Exec(
		`UPDATE entities SET embedding = ?, updated_at = datetime('now') WHERE id = ? AND deleted_at IS NULL`,
		encodeVector(embedding), entityID,
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update embedding: %w: %s", ErrEntityNotFound, entityID)
	}
	return nil
}

// GetEntityByID loads one active entity with its observations.
func (g *GraphStore) GetEntityByID(id string) (*models.Entity, error) {
	row := g.db.QueryRow(
		`SELECT id, name, entity_type, embedding, created_at, updated_at FROM entities WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	return g.scanEntity(row)
}

// GetEntityByName loads one active entity by display name. Names are not
// guaranteed unique across types; the oldest match wins.
func (g *GraphStore) GetEntityByName(name string) (*models.Entity, error) {
	row := g.db.QueryRow(
		`SELECT id, name, entity_type, embedding, created_at, updated_at FROM entities
		 WHERE name = ? AND deleted_at IS NULL ORDER BY created_at LIMIT 1`,
		name,
	)
	return g.scanEntity(row)
}

func (g *GraphStore) scanEntity(row *sql.Row) (*models.Entity, error) {
	var e models.Entity
	var blob []byte
	err := row.Scan(&e.ID, &e.Name, &e.EntityType, &blob, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Embedding = decodeVector(blob)

	obs, err := g.getObservations(e.ID)
	if err != nil {
		return nil, err
	}
	e.Observations = obs
	return &e, nil
}

// GetEntities retrieves entities by exact name match with their observations.
func (g *GraphStore) GetEntities(names []string) ([]models.Entity, error) {
	var entities []models.Entity
	for _, name := range names {
		e, err := g.GetEntityByName(name)
		if errors.Is(err, ErrEntityNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

// AllEntities loads every active entity with observations and embedding.
func (g *GraphStore) AllEntities() ([]models.Entity, error) {
	rows, err := g.db.Query(
		`SELECT id, name, entity_type, embedding, created_at, updated_at FROM entities WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		var blob []byte
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &blob, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Embedding = decodeVector(blob)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entities {
		obs, err := g.getObservations(entities[i].ID)
		if err != nil {
			return nil, err
		}
		entities[i].Observations = obs
	}
	return entities, nil
}

// CreateRelation inserts a directed edge between two existing entities. If
// an active relation with the same (from, to, type) triple already exists,
// the existing relation is returned with created=false: duplicates are a
// no-op, never an error, and confidence is not upgraded in place.
func (g *GraphStore) CreateRelation(fromID, toID, relationType string, confidence models.Confidence, props models.RelationProperties) (*models.Relation, bool, error) {
	if !confidence.Valid() {
		return nil, false, fmt.Errorf("invalid confidence %q", confidence)
	}

	tx, err := g.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Referential integrity lives here, not in the schema.
	for _, id := range []string{fromID, toID} {
		var one int
		err := tx.QueryRow(`SELECT 1 FROM entities WHERE id = ? AND deleted_at IS NULL`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return nil, false, fmt.Errorf("relation endpoint %s: %w", id, ErrEntityNotFound)
		}
		if err != nil {
			return nil, false, fmt.Errorf("check entity %s: %w", id, err)
		}
	}

	existing, err := activeRelation(tx, fromID, toID, relationType)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("check relation: %w", err)
	}

	propsOut, err := json.Marshal(props)
	if err != nil {
		return nil, false, fmt.Errorf("marshal properties: %w", err)
	}

	relID := uuid.New().String()
	_, err = tx.Exec(
		`INSERT INTO relations (id, from_entity, to_entity, relation_type, confidence, properties)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		relID, fromID, toID, relationType, string(confidence), string(propsOut),
	)
	if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) {
		// Lost a race with a concurrent insert of the same triple. Still
		// a no-op for the caller.
		tx.Rollback()
		existing, rerr := activeRelation(g.db, fromID, toID, relationType)
		if rerr != nil {
			return nil, false, fmt.Errorf("reread relation: %w", rerr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert relation: %w", err)
	}

	rel := &models.Relation{
		ID:           relID,
		FromEntityID: fromID,
		ToEntityID:   toID,
		RelationType: relationType,
		Confidence:   confidence,
		Properties:   props,
	}
	tx.QueryRow(`SELECT created_at FROM relations WHERE id = ?`, relID).Scan(&rel.CreatedAt)

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return rel, true, nil
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// activeRelation loads the live relation for a (from, to, type) triple.
// Returns sql.ErrNoRows when no such relation exists.
func activeRelation(q rowQuerier, fromID, toID, relationType string) (*models.Relation, error) {
	var rel models.Relation
	var propsJSON string
	err := q.QueryRow(
		`SELECT id, from_entity, to_entity, relation_type, confidence, properties, created_at
		 FROM relations
		 WHERE from_entity = ? AND to_entity = ? AND relation_type = ? AND deleted_at IS NULL`,
		fromID, toID, relationType,
	).Scan(&rel.ID, &rel.FromEntityID, &rel.ToEntityID, &rel.RelationType,
		&rel.Confidence, &propsJSON, &rel.CreatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(propsJSON), &rel.Properties)
	return &rel, nil
}

// ListRelations loads active relations touching an entity. Direction is
// "out" (entity is source), "in" (entity is target), or "both".
func (g *GraphStore) ListRelations(entityID, direction string) ([]models.Relation, error) {
	var where string
	args := []any{entityID}
	switch direction {
	case "out":
		where = `from_entity = ?`
	case "in":
		where = `to_entity = ?`
	case "both", "":
		where = `(from_entity = ? OR to_entity = ?)`
		args = append(args, entityID)
	default:
		return nil, fmt.Errorf("invalid direction %q (use in, out, or both)", direction)
	}

	rows, err := g.db.Query(
		`SELECT id, from_entity, to_entity, relation_type, confidence, properties, created_at
		 FROM relations WHERE `+where+` AND deleted_at IS NULL ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// AllRelations loads the full active edge set. Transitive discovery builds
// its adjacency snapshot from one call to this.
func (g *GraphStore) AllRelations() ([]models.Relation, error) {
	rows, err := g.db.Query(
		`SELECT id, from_entity, to_entity, relation_type, confidence, properties, created_at
		 FROM relations WHERE deleted_at IS NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func scanRelations(rows *sql.Rows) ([]models.Relation, error) {
	var rels []models.Relation
	for rows.Next() {
		var r models.Relation
		var propsJSON string
		if err := rows.Scan(&r.ID, &r.FromEntityID, &r.ToEntityID, &r.RelationType,
			&r.Confidence, &propsJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		json.Unmarshal([]byte(propsJSON), &r.Properties)
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// ReadGraph returns the complete active knowledge graph.
func (g *GraphStore) ReadGraph() (*models.KnowledgeGraph, error) {
	entities, err := g.AllEntities()
	if err != nil {
		return nil, err
	}
	relations, err := g.AllRelations()
	if err != nil {
		return nil, err
	}
	return &models.KnowledgeGraph{Entities: entities, Relations: relations}, nil
}

// Stats returns counts and the confidence/discovery-method distributions.
func (g *GraphStore) Stats() (*models.GraphStats, error) {
	stats := &models.GraphStats{
		ByConfidence:      make(map[models.Confidence]int),
		ByDiscoveryMethod: make(map[string]int),
	}

	row := g.db.QueryRow(`SELECT count(*) FROM entities WHERE deleted_at IS NULL`)
	if err := row.Scan(&stats.Entities); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	row = g.db.QueryRow(`SELECT count(*) FROM memories`)
	if err := row.Scan(&stats.Memories); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}

	rows, err := g.db.Query(
		`SELECT confidence, count(*) FROM relations WHERE deleted_at IS NULL GROUP BY confidence`,
	)
	if err != nil {
		return nil, fmt.Errorf("confidence distribution: %w", err)
	}
	for rows.Next() {
		var c models.Confidence
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		stats.ByConfidence[c] = n
		stats.Relations += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = g.db.Query(
		`SELECT json_extract(properties, '$.discovery_method'), count(*)
		 FROM relations WHERE deleted_at IS NULL GROUP BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("method distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var method sql.NullString
		var n int
		if err := rows.Scan(&method, &n); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		if method.Valid {
			stats.ByDiscoveryMethod[method.String] = n
		}
	}
	return stats, rows.Err()
}

// DeleteEntities soft-deletes entities by name and cascades to their
// observations and relations.
func (g *GraphStore) DeleteEntities(names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}

	tx, err := g.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inClause, args := placeholders(names)
	rows, err := tx.Query(
		fmt.Sprintf(`SELECT id FROM entities WHERE name IN (%s) AND deleted_at IS NULL`, inClause),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("query entities: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		rows.Scan(&id)
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	idClause, idArgs := placeholders(ids)
	_, err = tx.Exec(
		fmt.Sprintf(`UPDATE observations SET deleted_at = datetime('now') WHERE entity_id IN (%s) AND deleted_at IS NULL`, idClause),
		idArgs...,
	)
	if err != nil {
		return 0, fmt.Errorf("soft-delete observations: %w", err)
	}

	for _, id := range ids {
		_, err = tx.Exec(
			`UPDATE relations SET deleted_at = datetime('now') WHERE (from_entity = ? OR to_entity = ?) AND deleted_at IS NULL`,
			id, id,
		)
		if err != nil {
			return 0, fmt.Errorf("soft-delete relations: %w", err)
		}
	}

	result, err := tx.Exec(
		fmt.Sprintf(`UPDATE entities SET deleted_at = datetime('now'), updated_at = datetime('now') WHERE id IN (%s)`, idClause),
		idArgs...,
	)
	if err != nil {
		return 0, fmt.Errorf("soft-delete entities: %w", err)
	}

	count, _ := result.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

// DeleteRelations soft-deletes relations matching from/to entity names and type.
func (g *GraphStore) DeleteRelations(triples []RelationKey) (int64, error) {
	tx, err := g.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, k := range triples {
		var fromID, toID string
		if err := tx.QueryRow(`SELECT id FROM entities WHERE name = ? AND deleted_at IS NULL`, k.From).Scan(&fromID); err != nil {
			continue
		}
		if err := tx.QueryRow(`SELECT id FROM entities WHERE name = ? AND deleted_at IS NULL`, k.To).Scan(&toID); err != nil {
			continue
		}
		result, err := tx.Exec(
			`UPDATE relations SET deleted_at = datetime('now') WHERE from_entity = ? AND to_entity = ? AND relation_type = ? AND deleted_at IS NULL`,
			fromID, toID, k.RelationType,
		)
		if err != nil {
			return 0, fmt.Errorf("soft-delete relation: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// DeleteObservations soft-deletes specific observations of an entity by
// exact content match.
func (g *GraphStore) DeleteObservations(entityName string, contents []string) (int64, error) {
	entity, err := g.GetEntityByName(entityName)
	if err != nil {
		return 0, err
	}

	tx, err := g.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, content := range contents {
		result, err := tx.Exec(
			`UPDATE observations SET deleted_at = datetime('now') WHERE entity_id = ? AND content = ? AND deleted_at IS NULL`,
			entity.ID, content,
		)
		if err != nil {
			return 0, fmt.Errorf("soft-delete observation: %w", err)
		}
		n, _ := result.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// RelationKey identifies a relation by entity names and type.
type RelationKey struct {
	From         string
	To           string
	RelationType string
}

// getObservations loads all active observations for an entity, in insertion
// order.
func (g *GraphStore) getObservations(entityID string) ([]models.Observation, error) {
	rows, err := g.db.Query(
		`SELECT id, entity_id, content, created_at FROM observations WHERE entity_id = ? AND deleted_at IS NULL ORDER BY created_at, rowid`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var obs []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.ID, &o.EntityID, &o.Content, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func placeholders(values []string) (string, []any) {
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return strings.Join(marks, ","), args
}

// ftsQuote wraps each whitespace-separated term in double quotes so user
// text is treated as plain keywords rather than FTS5 syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}
