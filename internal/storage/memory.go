package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/sessionmind/memory-mcp/internal/embedding"
	"github.com/sessionmind/memory-mcp/internal/models"
)

// StoreMemory persists one unstructured memory record. The embedding may be
// nil when the embedding service is degraded; such records are still
// reachable through text search.
func (g *GraphStore) StoreMemory(content, project string, tags []string, metadata map[string]string, embedding []float32) (*models.MemoryRecord, error) {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	id := uuid.New().String()
	_, err = g.db.Exec(
		`INSERT INTO memories (id, content, embedding, project, tags, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		id, content, encodeVector(embedding), project, string(tagsJSON), string(metaJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	rec := &models.MemoryRecord{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Project:   project,
		Tags:      tags,
		Metadata:  metadata,
	}
	g.db.QueryRow(`SELECT created_at FROM memories WHERE id = ?`, id).Scan(&rec.CreatedAt)
	return rec, nil
}

// SearchMemories ranks stored memories by cosine similarity against the
// query vector. The second return value is the number of records that had a
// comparable embedding; callers fall back to text search when it is zero.
func (g *GraphStore) SearchMemories(queryVec []float32, threshold float64, limit int) ([]models.ScoredMemory, int, error) {
	rows, err := g.db.Query(
		`SELECT id, content, embedding, project, tags, metadata, created_at FROM memories ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var scored []models.ScoredMemory
	comparable := 0
	for rows.Next() {
		rec, blob, err := scanMemory(rows)
		if err != nil {
			return nil, 0, err
		}
		vec := decodeVector(blob)
		if len(vec) == 0 || len(vec) != len(queryVec) {
			continue
		}
		comparable++
		sim := embedding.Cosine(queryVec, vec)
		if sim < threshold {
			continue
		}
		rec.Embedding = vec
		scored = append(scored, models.ScoredMemory{MemoryRecord: *rec, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].CreatedAt > scored[j].CreatedAt
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, comparable, nil
}

// SearchMemoriesText is the degraded-mode path: FTS keyword match over
// memory content, newest first, all results scored 0.0.
func (g *GraphStore) SearchMemoriesText(query string, limit int) ([]models.ScoredMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := g.db.Query(
		`SELECT m.id, m.content, m.embedding, m.project, m.tags, m.metadata, m.created_at
		 FROM memories_fts f
		 JOIN memories m ON m.rowid = f.rowid
		 WHERE memories_fts MATCH ?
		 ORDER BY m.created_at DESC
		 LIMIT ?`,
		ftsQuote(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredMemory
	for rows.Next() {
		rec, blob, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		rec.Embedding = decodeVector(blob)
		results = append(results, models.ScoredMemory{MemoryRecord: *rec, Similarity: 0.0})
	}
	return results, rows.Err()
}

func scanMemory(rows *sql.Rows) (*models.MemoryRecord, []byte, error) {
	var rec models.MemoryRecord
	var blob []byte
	var tagsJSON, metaJSON string
	if err := rows.Scan(&rec.ID, &rec.Content, &blob, &rec.Project, &tagsJSON, &metaJSON, &rec.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("scan memory: %w", err)
	}
	json.Unmarshal([]byte(tagsJSON), &rec.Tags)
	json.Unmarshal([]byte(metaJSON), &rec.Metadata)
	return &rec, blob, nil
}
