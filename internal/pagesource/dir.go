package pagesource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// DirSource reads page images from <root>/<ref>/.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// FetchPageImages loads every supported image in the document directory.
func (d *DirSource) FetchPageImages(ctx context.Context, ref string) ([]document.PageImage, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}

	dir := filepath.Join(d.root, filepath.FromSlash(ref))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages in %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ContentType(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no page images found in %s", dir)
	}

	pages := make([]document.PageImage, 0, len(names))
	for _, p := range orderPages(names) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, p.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %s: %w", p.name, err)
		}
		ct, _ := ContentType(p.name)
		pages = append(pages, document.PageImage{Number: p.number, Data: data, ContentType: ct})
	}
	return pages, nil
}
