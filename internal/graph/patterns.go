// Package graph implements relationship inference and discovery over the
// knowledge graph: pattern extraction from observation text, similarity and
// type-pair based inference, and transitive chain discovery.
package graph

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sessionmind/memory-mcp/internal/models"
)

// Relation types produced by inference. Callers may also use free-form
// types; these are the ones the engine emits on its own.
const (
	RelUses           = "uses"
	RelUsedBy         = "used_by"
	RelDependsOn      = "depends_on"
	RelExtends        = "extends"
	RelImplements     = "implements"
	RelRequires       = "requires"
	RelConnectsTo     = "connects_to"
	RelIntegratesWith = "integrates_with"
	RelBuiltWith      = "built_with"
	RelBasedOn        = "based_on"
	RelPartOf         = "part_of"
	RelContains       = "contains"
	RelTests          = "tests"
	RelTestedBy       = "tested_by"
	RelCalls          = "calls"
	RelReplaces       = "replaces"
	RelAppliesTo      = "applies_to"
	RelVerySimilarTo  = "very_similar_to"
	RelSimilarTo      = "similar_to"
	RelRelatedTo      = "related_to"
)

// verbPatterns maps observation verb phrases to relation types. Order
// matters: the first matching phrase wins.
var verbPatterns = []struct {
	Phrase string
	Type   string
}{
	{"depends on", RelDependsOn},
	{"connects to", RelConnectsTo},
	{"integrates with", RelIntegratesWith},
	{"built with", RelBuiltWith},
	{"based on", RelBasedOn},
	{"part of", RelPartOf},
	{"uses", RelUses},
	{"extends", RelExtends},
	{"implements", RelImplements},
	{"requires", RelRequires},
	{"contains", RelContains},
	{"tests", RelTests},
	{"calls", RelCalls},
	{"replaces", RelReplaces},
}

var (
	patternMu    sync.Mutex
	patternCache = make(map[string]*regexp.Regexp)
)

// patternRegexp builds (and caches) the case-insensitive matcher for one
// verb phrase followed by a specific target name, both on word boundaries.
func patternRegexp(phrase, target string) *regexp.Regexp {
	key := phrase + "\x00" + target
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[key]; ok {
		return re
	}
	verb := strings.ReplaceAll(regexp.QuoteMeta(phrase), ` `, `\s+`)
	// \b cannot match after a rune like '+' or ')', so names such as "C++"
	// get an explicit right boundary instead.
	tail := `\b`
	if r, _ := utf8.DecodeLastRuneInString(target); !isWordRune(r) {
		tail = `(?:$|\W)`
	}
	re := regexp.MustCompile(`(?i)\b` + verb + `\s+` + regexp.QuoteMeta(target) + tail)
	patternCache[key] = re
	return re
}

// isWordRune mirrors the regexp package's ASCII notion of \w.
func isWordRune(r rune) bool {
	return r == '_' ||
		'0' <= r && r <= '9' ||
		'a' <= r && r <= 'z' ||
		'A' <= r && r <= 'Z'
}

// MatchPattern checks one observation for a verb phrase that targets the
// named entity. The phrase and the full target name must both appear on
// word boundaries, so "confuses FastMCP" does not match "uses" and
// "uses FastMCPExtra" does not match a target of "FastMCP".
func MatchPattern(observation, targetName string) (string, bool) {
	if targetName == "" {
		return "", false
	}
	for _, p := range verbPatterns {
		if patternRegexp(p.Phrase, targetName).MatchString(observation) {
			return p.Type, true
		}
	}
	return "", false
}

// PatternMatch is one extracted relationship with the observation that
// produced it.
type PatternMatch struct {
	TargetID     string
	TargetName   string
	RelationType string
	Evidence     string
}

// ExtractPatternRelations scans an entity's observations against every
// candidate entity name and returns one match per (target, type) pair, with
// the first matching observation as evidence. The entity never matches
// itself.
func ExtractPatternRelations(entity *models.Entity, candidates []models.Entity) []PatternMatch {
	var matches []PatternMatch
	seen := make(map[string]bool)
	for _, obs := range entity.Observations {
		for _, cand := range candidates {
			if cand.ID == entity.ID {
				continue
			}
			relType, ok := MatchPattern(obs.Content, cand.Name)
			if !ok {
				continue
			}
			key := cand.ID + "\x00" + relType
			if seen[key] {
				continue
			}
			seen[key] = true
			matches = append(matches, PatternMatch{
				TargetID:     cand.ID,
				TargetName:   cand.Name,
				RelationType: relType,
				Evidence:     obs.Content,
			})
		}
	}
	return matches
}
