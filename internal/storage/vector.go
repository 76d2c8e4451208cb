package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/sessionmind/memory-mcp/internal/embedding"
	"github.com/sessionmind/memory-mcp/internal/models"
)

// encodeVector packs a float32 slice into a little-endian blob for storage.
// A nil vector encodes as NULL.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a stored blob back into a float32 slice. Malformed
// blobs decode as nil rather than erroring; the row then behaves as if the
// entity had no embedding.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// FindSimilar ranks entities by cosine similarity to queryVec, filtering out
// results below threshold and the excluded entity. Similarity is computed in
// the application layer over stored vectors; rows with no embedding or a
// mismatched dimension are skipped. The second return value counts the rows
// that carried a comparable embedding, so callers can distinguish "nothing
// similar enough" from "nothing to compare against" and fall back to text
// search in the latter case. Results are ordered by similarity descending,
// then recency descending.
func (g *GraphStore) FindSimilar(queryVec []float32, threshold float64, limit int, excludeID string) ([]models.ScoredEntity, int, error) {
	entities, err := g.AllEntities()
	if err != nil {
		return nil, 0, err
	}

	var scored []models.ScoredEntity
	comparable := 0
	for _, e := range entities {
		if e.ID == excludeID {
			continue
		}
		if len(e.Embedding) == 0 || len(e.Embedding) != len(queryVec) {
			continue
		}
		comparable++
		sim := embedding.Cosine(queryVec, e.Embedding)
		if sim < threshold {
			continue
		}
		scored = append(scored, models.ScoredEntity{Entity: e, Similarity: sim})
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

// SearchEntitiesText is the embedding-free fallback: FTS5 keyword search
// over entity names, types and observations. Results carry similarity 0.0
// and are ranked by recency.
func (g *GraphStore) SearchEntitiesText(query string, limit int) ([]models.ScoredEntity, error) {
	match := ftsQuote(query)
	if match == "" {
		return nil, nil
	}

	seen := make(map[string]bool)

	rows, err := g.db.Query(
		`SELECT e.id FROM entities e
		 JOIN entities_fts ON entities_fts.rowid = e.rowid
		 WHERE entities_fts MATCH ? AND e.deleted_at IS NULL`,
		match,
	)
	if err != nil {
		return nil, fmt.Errorf("search entities fts: %w", err)
	}
	for rows.Next() {
		var id string
		rows.Scan(&id)
		seen[id] = true
	}
	rows.Close()

	obsRows, err := g.db.Query(
		`SELECT DISTINCT o.entity_id FROM observations o
		 JOIN observations_fts ON observations_fts.rowid = o.rowid
		 WHERE observations_fts MATCH ? AND o.deleted_at IS NULL`,
		match,
	)
	if err != nil {
		return nil, fmt.Errorf("search observations fts: %w", err)
	}
	for obsRows.Next() {
		var entityID string
		obsRows.Scan(&entityID)
		seen[entityID] = true
	}
	obsRows.Close()

	var results []models.ScoredEntity
	for id := range seen {
		e, err := g.GetEntityByID(id)
		if err != nil {
			continue // deleted between search and load
		}
		results = append(results, models.ScoredEntity{Entity: *e, Similarity: 0.0})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt > results[j].CreatedAt
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
