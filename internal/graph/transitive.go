package graph

import (
	"context"
	"log"

	"github.com/sessionmind/memory-mcp/internal/models"
)

// DiscoverStore is the slice of the graph store transitive discovery needs.
type DiscoverStore interface {
	AllRelations() ([]models.Relation, error)
	CreateRelation(fromID, toID, relationType string, confidence models.Confidence, props models.RelationProperties) (*models.Relation, bool, error)
}

// DiscoverOptions bound a transitive discovery run.
type DiscoverOptions struct {
	// MaxDepth is the longest chain followed. Chains shorter than 2 edges
	// cannot produce a new relation. Defaults to 2.
	MaxDepth int
	// MinConfidence filters out chains whose weakest edge falls below it.
	// Defaults to medium.
	MinConfidence models.Confidence
	// Limit caps the number of relations created in one run. Zero means
	// no cap.
	Limit int
}

func (o *DiscoverOptions) applyDefaults() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 2
	}
	if o.MinConfidence == "" {
		o.MinConfidence = models.ConfidenceMedium
	}
}

type edge struct {
	to         string
	relType    string
	confidence models.Confidence
}

type tripleKey struct {
	from, to, relType string
}

// Discoverer walks relation chains and materializes the transitive edges
// they imply.
type Discoverer struct {
	store DiscoverStore
}

// NewDiscoverer returns a Discoverer over the given store.
func NewDiscoverer(store DiscoverStore) *Discoverer {
	return &Discoverer{store: store}
}

// Discover runs breadth-first over every node in the current edge set. A
// chain A -> B -> C implies a direct A -> C relation carrying the type of
// the chain's first edge and the minimum confidence along the chain. The
// operation is idempotent: chains whose implied relation already exists
// count as duplicates avoided, and a second run over an unchanged graph
// creates nothing. Cycles are safe because each path tracks its own visited
// set. When ctx is cancelled mid-run the counts accumulated so far are
// returned.
func (d *Discoverer) Discover(ctx context.Context, opts DiscoverOptions) (*models.DiscoveryResult, error) {
	opts.applyDefaults()

	relations, err := d.store.AllRelations()
	if err != nil {
		return nil, err
	}

	adjacency := make(map[string][]edge)
	direct := make(map[tripleKey]bool)
	nodes := make(map[string]bool)
	for _, r := range relations {
		direct[tripleKey{r.FromEntityID, r.ToEntityID, r.RelationType}] = true
		nodes[r.FromEntityID] = true
		nodes[r.ToEntityID] = true
		// Edges produced by an earlier discovery run stay out of the
		// adjacency map. Composing them would let each run extend the
		// previous run's shortcuts, so repeated runs over an unchanged
		// graph would keep creating edges and max_depth would stop
		// bounding the original chain length.
		if r.Properties.Transitive {
			continue
		}
		adjacency[r.FromEntityID] = append(adjacency[r.FromEntityID], edge{
			to:         r.ToEntityID,
			relType:    r.RelationType,
			confidence: r.Confidence,
		})
	}

	result := &models.DiscoveryResult{}

	type pathState struct {
		node      string
		depth     int
		firstType string
		minConf   models.Confidence
		visited   map[string]bool
	}

	for source := range nodes {
		if err := ctx.Err(); err != nil {
			return result, nil
		}

		queue := []pathState{{
			node:    source,
			visited: map[string]bool{source: true},
		}}

		for len(queue) > 0 {
			state := queue[0]
			queue = queue[1:]

			if state.depth >= opts.MaxDepth {
				continue
			}

			for _, e := range adjacency[state.node] {
				if state.visited[e.to] {
					continue
				}

				firstType := state.firstType
				minConf := state.minConf
				if state.depth == 0 {
					firstType = e.relType
					minConf = e.confidence
				} else {
					minConf = models.MinConfidence(minConf, e.confidence)
				}

				nextDepth := state.depth + 1
				if nextDepth >= 2 {
					// A candidate transitive edge from source to e.to.
					switch {
					case minConf.Rank() < opts.MinConfidence.Rank():
						result.Skipped++
					case direct[tripleKey{source, e.to, firstType}]:
						result.DuplicatesAvoided++
					default:
						_, created, err := d.store.CreateRelation(
							source, e.to, firstType, minConf,
							models.TransitiveProperties(nextDepth),
						)
						if err != nil {
							log.Printf("[discover] create %s -> %s (%s): %v", source, e.to, firstType, err)
							result.Skipped++
						} else if !created {
							result.DuplicatesAvoided++
						} else {
							result.Created++
							direct[tripleKey{source, e.to, firstType}] = true
							if opts.Limit > 0 && result.Created >= opts.Limit {
								return result, nil
							}
						}
					}
				}

				if nextDepth < opts.MaxDepth {
					visited := make(map[string]bool, len(state.visited)+1)
					for k := range state.visited {
						visited[k] = true
					}
					visited[e.to] = true
					queue = append(queue, pathState{
						node:      e.to,
						depth:     nextDepth,
						firstType: firstType,
						minConf:   minConf,
						visited:   visited,
					})
				}
			}
		}
	}

	return result, nil
}
