/**
 * Page Image Source
 *
 * A document reference resolves to an ordered sequence of page images that
 * were rasterized upstream. Page numbers come from the digits in each file
 * name ("page-0003.png" is page 3); names without digits sort after numbered
 * pages and are numbered in order.
 */

package pagesource

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// Source fetches the rasterized pages of a document.
type Source interface {
	FetchPageImages(ctx context.Context, ref string) ([]document.PageImage, error)
}

// Static serves pages already held in memory; the ref is ignored.
type Static []document.PageImage

func (s Static) FetchPageImages(ctx context.Context, ref string) ([]document.PageImage, error) {
	out := make([]document.PageImage, len(s))
	copy(out, s)
	return out, nil
}

var supportedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// ContentType returns the MIME type for a supported page image name.
func ContentType(name string) (string, bool) {
	ct, ok := supportedExtensions[strings.ToLower(path.Ext(name))]
	return ct, ok
}

// ValidateRef rejects references that could escape the configured root.
func ValidateRef(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("document reference is required")
	}
	if len(ref) > 512 {
		return fmt.Errorf("document reference exceeds 512 characters")
	}
	if strings.Contains(ref, "..") || strings.Contains(ref, "//") {
		return fmt.Errorf("document reference %q contains a path traversal sequence", ref)
	}
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`) {
		return fmt.Errorf("document reference %q must be relative", ref)
	}
	return nil
}

var pageDigits = regexp.MustCompile(`(\d+)`)

type namedPage struct {
	name   string
	number int
}

// orderPages sorts page object names by the last number in their base name.
func orderPages(names []string) []namedPage {
	pages := make([]namedPage, 0, len(names))
	for _, n := range names {
		number := -1
		if m := pageDigits.FindAllString(path.Base(n), -1); len(m) > 0 {
			if v, err := strconv.Atoi(m[len(m)-1]); err == nil {
				number = v
			}
		}
		pages = append(pages, namedPage{name: n, number: number})
	}

	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		if (a.number < 0) != (b.number < 0) {
			return a.number >= 0
		}
		if a.number != b.number {
			return a.number < b.number
		}
		return a.name < b.name
	})

	for i := range pages {
		pages[i].number = i + 1
	}
	return pages
}
