package knowledge

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/internal/privacy"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"go.uber.org/zap"
)

const (
	// maxDocBytes caps a single ingested document.
	maxDocBytes = 256 * 1024

	docIngestWorkers = 4
)

var docExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".adoc":     true,
}

// DocIngestResult summarizes a directory walk.
type DocIngestResult struct {
	Scanned  int
	Ingested int
	Skipped  int
}

// IngestDocsDir walks root for engineering docs and upserts each as a DOC
// knowledge source. Paths failing the sharing policy and non-doc files are
// skipped; unchanged content dedupes on its hash. Files are processed by a
// small worker pool.
func (s *Service) IngestDocsDir(ctx context.Context, tenantID, root string) (DocIngestResult, error) {
	var result DocIngestResult
	var mu sync.Mutex

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		result.Scanned++
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if !docExtensions[strings.ToLower(filepath.Ext(rel))] || !privacy.IsPathAllowed(rel) {
			result.Skipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return result, errors.Wrap(errors.ErrCodeInternal, "doc directory walk failed", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(docIngestWorkers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ingested, err := s.ingestDocFile(tenantID, root, path)
			mu.Lock()
			if ingested {
				result.Ingested++
			} else if err == nil {
				result.Skipped++
			}
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	logger.Info("doc ingestion finished",
		zap.String("root", root),
		zap.Int("scanned", result.Scanned),
		zap.Int("ingested", result.Ingested),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Service) ingestDocFile(tenantID, root, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInternal, "read doc file", err)
	}
	if len(data) > maxDocBytes {
		data = data[:maxDocBytes]
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false, err
	}
	rel = filepath.ToSlash(rel)

	content, _ := privacy.Redact(string(data))
	title := docTitle(rel, content)

	source := &model.KnowledgeSource{
		TenantID:      tenantID,
		Type:          model.KnowledgeTypeDoc,
		ProviderID:    rel,
		Title:         title,
		ContentText:   content,
		ContentHash:   ContentHash(content),
		FeatureTokens: model.StringArray(FeatureSignature(title, content, []string{rel}, nil)),
	}
	_, created, err := s.store.Knowledge().Upsert(source)
	return created, err
}

// docTitle uses the first markdown heading, falling back to the file name.
func docTitle(rel, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
		if line != "" {
			break
		}
	}
	return filepath.Base(rel)
}
