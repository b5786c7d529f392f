// Package catalog provides a Bleve text index over the filenames and class folders of
// the reference collection, so images can be looked up by name alongside visual search.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kagami/internal/fileid"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vectorstore"
)

// DefaultLimit is used by Search when no limit is given.
const DefaultLimit = 20

// Entry is one indexed image.
type Entry struct {
	Row      int     `json:"row"`
	Path     string  `json:"path"`
	Filename string  `json:"filename"`
	Class    string  `json:"class"`
	Score    float64 `json:"score,omitempty"`
}

// document is the shape stored in Bleve.
type document struct {
	Row       int    `json:"row"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Name      string `json:"name"`
	Class     string `json:"class"`
	ClassText string `json:"class_text"`
}

// Query selects catalog entries. Text matches filename words and class words; Class
// restricts to one class folder exactly. Both empty matches everything.
type Query struct {
	Text  string
	Class string
	Limit int
	// Fuzziness is the maximum edit distance per term; 0 disables fuzzy matching.
	Fuzziness int
}

// Catalog is a Bleve-backed filename and class index.
type Catalog struct {
	index bleve.Index
	root  string
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so "retriever" matches exactly.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("class_text", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("class", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("path", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("filename", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("row", bleve.NewNumericFieldMapping())

	im.AddDocumentMapping("image", docMapping)
	im.DefaultType = "image"
	im.DefaultMapping = docMapping
	return im
}

// New creates or opens a catalog index at path. root is the collection root used to
// derive class names.
// If the mapping changes in code, remove the index directory to force a rebuild.
func New(path, root string) (*Catalog, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open catalog index: %w", openErr)
		}
		return &Catalog{index: index, root: root}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog index: %w", err)
	}
	return &Catalog{index: index, root: root}, nil
}

// NewMemOnly creates an in-memory catalog.
func NewMemOnly(root string) (*Catalog, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog index: %w", err)
	}
	return &Catalog{index: index, root: root}, nil
}

func (c *Catalog) toDocument(row int, rec models.SourceRecord) document {
	class := models.ClassName(c.root, rec.CanonicalPath)
	stem := strings.TrimSuffix(rec.Filename(), filepath.Ext(rec.CanonicalPath))
	return document{
		Row:       row,
		Path:      rec.CanonicalPath,
		Filename:  rec.Filename(),
		Name:      humanize(stem),
		Class:     class,
		ClassText: humanize(class),
	}
}

var separators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// humanize splits identifiers like "golden_retriever-01" into words.
func humanize(s string) string {
	return separators.Replace(s)
}

// Rebuild replaces the catalog contents with the non-placeholder rows of store.
func (c *Catalog) Rebuild(ctx context.Context, store *vectorstore.Store) error {
	keep := make(map[string]struct{}, store.Len())
	batch := c.index.NewBatch()
	for row, rec := range store.Sources() {
		if rec.Placeholder {
			continue
		}
		id := fileid.PathID(rec.CanonicalPath)
		keep[id] = struct{}{}
		if err := batch.Index(id, c.toDocument(row, rec)); err != nil {
			return fmt.Errorf("index %s: %w", rec.CanonicalPath, err)
		}
	}

	stale, err := c.staleIDs(ctx, keep)
	if err != nil {
		return err
	}
	for _, id := range stale {
		batch.Delete(id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("catalog batch failed: %w", err)
	}
	return nil
}

func (c *Catalog) staleIDs(ctx context.Context, keep map[string]struct{}) ([]string, error) {
	total, err := c.index.DocCount()
	if err != nil || total == 0 {
		return nil, err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(total)
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog scan failed: %w", err)
	}
	var stale []string
	for _, hit := range res.Hits {
		if _, ok := keep[hit.ID]; !ok {
			stale = append(stale, hit.ID)
		}
	}
	return stale, nil
}

// Add indexes a single row, as after an incremental append.
func (c *Catalog) Add(row int, rec models.SourceRecord) error {
	if rec.Placeholder {
		return nil
	}
	return c.index.Index(fileid.PathID(rec.CanonicalPath), c.toDocument(row, rec))
}

// Search returns entries matching q, best match first. Ties keep row order.
func (c *Catalog) Search(ctx context.Context, q Query) ([]*Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := bleve.NewSearchRequest(buildQuery(q))
	req.Size = limit
	req.Fields = []string{"*"}
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}

	out := make([]*Entry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		e := &Entry{Score: hit.Score}
		if v, ok := hit.Fields["row"].(float64); ok {
			e.Row = int(v)
		}
		e.Path, _ = hit.Fields["path"].(string)
		e.Filename, _ = hit.Fields["filename"].(string)
		e.Class, _ = hit.Fields["class"].(string)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Row < out[j].Row
	})
	return out, nil
}

func buildQuery(q Query) blevequery.Query {
	var parts []blevequery.Query
	if text := strings.TrimSpace(q.Text); text != "" {
		parts = append(parts, textQuery(text, q.Fuzziness))
	}
	if q.Class != "" {
		tq := bleve.NewTermQuery(q.Class)
		tq.SetField("class")
		parts = append(parts, tq)
	}
	switch len(parts) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return parts[0]
	default:
		return bleve.NewConjunctionQuery(parts...)
	}
}

// textQuery matches any term against the name and class words.
func textQuery(text string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(humanize(text)))
	queries := make([]blevequery.Query, 0, 2*len(terms))
	for _, field := range []string{"name", "class_text"} {
		if fuzziness <= 0 {
			mq := bleve.NewMatchQuery(text)
			mq.SetField(field)
			queries = append(queries, mq)
			continue
		}
		for _, term := range terms {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(field)
			queries = append(queries, fq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Count returns the number of indexed images.
func (c *Catalog) Count() (uint64, error) {
	return c.index.DocCount()
}

// Classes returns the number of images per class in store, sorted by class name.
func Classes(store *vectorstore.Store, root string) []ClassCount {
	counts := make(map[string]int)
	for _, rec := range store.Sources() {
		if rec.Placeholder {
			continue
		}
		counts[models.ClassName(root, rec.CanonicalPath)]++
	}
	out := make([]ClassCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, ClassCount{Class: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// ClassCount is the number of images in one class folder.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// Close closes the underlying index.
func (c *Catalog) Close() error {
	return c.index.Close()
}
