package rag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// chunkNamespace scopes the UUIDv5 chunk identifiers to this service.
var chunkNamespace = uuid.MustParse("6f1c3b7e-52a4-4d0c-9a47-1d7d6b1e8c31")

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,64}$`)

type Asset struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Content   string `json:"-"`
}

// Length is the asset text length in characters.
func (a Asset) Length() int {
	return len([]rune(a.Content))
}

type Chunk struct {
	ID      string `json:"id"`
	AssetID string `json:"asset_id"`
	Ordinal int    `json:"ordinal"`
	Content string `json:"content"`
}

func (c Chunk) Length() int {
	return len([]rune(c.Content))
}

type Payload struct {
	Content   string `json:"content"`
	AssetID   string `json:"asset_id"`
	ProjectID string `json:"project_id"`
	Ordinal   int    `json:"ordinal"`
}

type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type RetrievedChunk struct {
	ID string `json:"chunk_id"`
	Payload
	Score float32 `json:"score"`
}

type Answer struct {
	Text      string           `json:"answer"`
	Question  string           `json:"question"`
	Citations []RetrievedChunk `json:"citations"`
}

type CollectionInfo struct {
	VectorCount int `json:"vector_count"`
	Dimension   int `json:"dimension"`
}

// ChunkID derives the stable identifier of the chunk at ordinal within an asset.
// The same (assetID, ordinal) pair always maps to the same UUID.
func ChunkID(assetID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(assetID+":"+strconv.Itoa(ordinal))).String()
}

// CollectionName maps a project to its vector collection.
func CollectionName(projectID string) string {
	return "collection_" + projectID
}

func ValidateProjectID(projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return NewFieldError("project_id", "is required")
	}
	if !projectIDPattern.MatchString(projectID) {
		return NewFieldError("project_id", "must be 1-64 alphanumeric characters")
	}
	return nil
}

// TieSlack is how many extra candidates a backend that truncates on the
// server fetches, so equal scores at the cut can still be ordered by id.
// A tie run longer than this at the boundary is not guaranteed to resolve.
const TieSlack = 16

// CandidateLimit is the server-side limit to request for topK results.
func CandidateLimit(topK int) int {
	if topK <= 0 {
		return topK
	}
	return topK + TieSlack
}

// Rank orders results by descending score with ascending chunk id as the
// tie-break, drops entries below threshold and keeps at most topK.
func Rank(results []RetrievedChunk, topK int, threshold float32) []RetrievedChunk {
	kept := make([]RetrievedChunk, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].ID < kept[j].ID
	})
	if topK >= 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
