package pagesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRef(t *testing.T) {
	tests := []struct {
		ref     string
		wantErr bool
	}{
		{"contracts/abc", false},
		{"", true},
		{"../etc", true},
		{"a//b", true},
		{"/abs/path", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			err := ValidateRef(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderPages(t *testing.T) {
	got := orderPages([]string{"scan/page-10.png", "cover.png", "scan/page-2.png", "scan/page-1.png"})

	names := make([]string, len(got))
	numbers := make([]int, len(got))
	for i, p := range got {
		names[i] = p.name
		numbers[i] = p.number
	}

	assert.Equal(t, []string{"scan/page-1.png", "scan/page-2.png", "scan/page-10.png", "cover.png"}, names)
	assert.Equal(t, []int{1, 2, 3, 4}, numbers)
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	docDir := filepath.Join(root, "doc-1")
	require.NoError(t, os.MkdirAll(docDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docDir, "page-2.jpg"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docDir, "page-1.png"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docDir, "notes.txt"), []byte("skip"), 0o644))

	pages, err := NewDirSource(root).FetchPageImages(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, []byte("one"), pages[0].Data)
	assert.Equal(t, "image/png", pages[0].ContentType)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, "image/jpeg", pages[1].ContentType)

	_, err = NewDirSource(root).FetchPageImages(context.Background(), "../doc-1")
	assert.Error(t, err)
}

func TestStaticCopies(t *testing.T) {
	src := Static{{Number: 1, Data: []byte("a")}}
	pages, err := src.FetchPageImages(context.Background(), "ignored")
	require.NoError(t, err)

	pages[0].Number = 9
	assert.Equal(t, 1, src[0].Number)
}
