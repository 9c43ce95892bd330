package domain

import (
	"strings"
	"time"
)

// CatalogItem is a product record in the catalog file.
// ID is assigned by catalog mutation and never reused.
type CatalogItem struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Price    float64    `json:"price"`
	Image    string     `json:"image,omitempty"`
	ImageURL string     `json:"image_url,omitempty"` // legacy seed field
	AddedAt  *time.Time `json:"addedAt,omitempty"`
}

// ImageRef returns the image reference used to (re)compute the item embedding.
// Parameters: none.
// Returns:
//   - string: http(s) URL or data URL, empty when the item has no image.
func (c *CatalogItem) ImageRef() string {
	if c.Image != "" {
		return c.Image
	}
	return c.ImageURL
}

// ItemDraft holds the caller-supplied fields of a new catalog item.
type ItemDraft struct {
	Name     string
	Category string
	Price    float64
	Image    string
}

const (
	// DefaultCategory is used when a draft has no category.
	DefaultCategory = "Uncategorized"
)

// Normalize trims the draft fields in place.
func (d *ItemDraft) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Category = strings.TrimSpace(d.Category)
	d.Image = strings.TrimSpace(d.Image)
}

// EmbeddingIndex maps catalog item ids to embeddings.
// A present key with a nil vector is the absent marker: a previous computation failed.
// A missing key means no computation was ever attempted.
type EmbeddingIndex map[int64][]float32

// Lookup returns the vector for id and whether the id is known to the index.
// Parameters:
//   - id: catalog item id.
// Returns:
//   - []float32: embedding, nil when absent.
//   - bool: true when the index holds an entry (vector or absent marker) for id.
func (idx EmbeddingIndex) Lookup(id int64) ([]float32, bool) {
	vec, ok := idx[id]
	if len(vec) == 0 {
		return nil, ok
	}
	return vec, ok
}

// Present counts entries with a usable vector.
func (idx EmbeddingIndex) Present() int {
	n := 0
	for _, vec := range idx {
		if len(vec) > 0 {
			n++
		}
	}
	return n
}

// CatalogSnapshot is an immutable view of the catalog taken at the start of a request.
type CatalogSnapshot struct {
	Items      []CatalogItem
	Embeddings EmbeddingIndex
}

// MaxID returns the highest item id in the snapshot, 0 when empty.
func (s *CatalogSnapshot) MaxID() int64 {
	var maxID int64
	for _, item := range s.Items {
		if item.ID > maxID {
			maxID = item.ID
		}
	}
	return maxID
}

// MatchCandidate is a ranked catalog item. The embedding is never part of it.
type MatchCandidate struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Score    float64 `json:"score"`
}

// NewMatchCandidate builds a candidate from a catalog item and a final score.
func NewMatchCandidate(item *CatalogItem, score float64) MatchCandidate {
	return MatchCandidate{
		ID:       item.ID,
		Name:     item.Name,
		Category: item.Category,
		Price:    item.Price,
		Image:    item.ImageRef(),
		Score:    score,
	}
}
