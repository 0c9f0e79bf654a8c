package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path"
	"sort"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/jackc/pgx/v4"

	"manga-translate-pipeline/internal/domain"
	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/repository"
	"manga-translate-pipeline/internal/domain/ports/storage"
)

// Importer turns an uploaded archive or document into numbered page
// records plus their original page images. Page indexes are 1-based,
// assigned in entry order, and never change afterwards. All page records
// of one import are created in a single transaction, so a crashed import
// never leaves a half-numbered job behind.
type Importer struct {
	pages     repository.PageRepository
	artifacts storage.ArtifactStore
	txm       repository.TransactionManager
}

func New(pages repository.PageRepository, artifacts storage.ArtifactStore, txm repository.TransactionManager) *Importer {
	return &Importer{pages: pages, artifacts: artifacts, txm: txm}
}

// File is one uploaded file.
type File struct {
	Name string
	Data []byte
}

// pageImage is one decoded page ready to be persisted.
type pageImage struct {
	ext  string
	data []byte
}

// ImportArchive expands a CBZ/ZIP archive or a PDF into pages. Returns the
// number of pages created.
func (im *Importer) ImportArchive(ctx context.Context, job *model.Job, filename string, data []byte) (int, error) {
	lower := strings.ToLower(filename)

	var (
		images []pageImage
		err    error
	)
	switch {
	case strings.HasSuffix(lower, ".cbz"), strings.HasSuffix(lower, ".zip"):
		images, err = extractZip(data)
	case strings.HasSuffix(lower, ".pdf"):
		images, err = renderPDF(data)
	default:
		return 0, domain.Validationf("unsupported file type: %s", filename)
	}
	if err != nil {
		return 0, err
	}

	if err := im.createPages(ctx, job, 0, images); err != nil {
		return 0, err
	}
	return len(images), nil
}

// AppendPages adds loose image uploads after any existing pages. Returns
// the job's new page total.
func (im *Importer) AppendPages(ctx context.Context, job *model.Job, files []File) (int, error) {
	existing, err := im.pages.CountByJob(ctx, job.ID)
	if err != nil {
		return 0, err
	}

	images := make([]pageImage, 0, len(files))
	for _, f := range files {
		ext := imageExt(f.Name)
		if ext == "" {
			return 0, domain.Validationf("unsupported image type: %s", f.Name)
		}
		images = append(images, pageImage{ext: ext, data: f.Data})
	}

	if err := im.createPages(ctx, job, existing, images); err != nil {
		return 0, err
	}
	return existing + len(images), nil
}

// createPages stores the originals and inserts every page record in one
// transaction, numbering from offset+1.
func (im *Importer) createPages(ctx context.Context, job *model.Job, offset int, images []pageImage) error {
	paths := make([]string, len(images))
	for i, img := range images {
		p, err := im.artifacts.WriteOriginal(job.ID, offset+i+1, img.ext, img.data)
		if err != nil {
			return fmt.Errorf("store page %d: %w", offset+i+1, err)
		}
		paths[i] = p
	}

	return im.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for i := range images {
			page := &model.Page{
				JobID:        job.ID,
				PageIndex:    offset + i + 1,
				Status:       model.PageStatusQueued,
				OriginalPath: paths[i],
			}
			if err := im.pages.Save(ctx, tx, page); err != nil {
				return err
			}
		}
		return nil
	})
}

func extractZip(data []byte) ([]pageImage, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.Validationf("unreadable archive: %v", err)
	}

	var entries []*zip.File
	for _, f := range zr.File {
		if imageExt(f.Name) != "" {
			entries = append(entries, f)
		}
	}
	if len(entries) == 0 {
		return nil, domain.Validationf("no images found in archive")
	}
	// Archives number pages as 1, 2, ... 10; plain lexicographic order
	// would interleave them.
	sort.Slice(entries, func(i, j int) bool {
		return naturalLess(entries[i].Name, entries[j].Name)
	})

	images := make([]pageImage, 0, len(entries))
	for _, entry := range entries {
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s: %w", entry.Name, err)
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s: %w", entry.Name, err)
		}
		images = append(images, pageImage{ext: imageExt(entry.Name), data: buf.Bytes()})
	}
	return images, nil
}

func renderPDF(data []byte) ([]pageImage, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.Validationf("unreadable PDF: %v", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, domain.Validationf("no pages rendered from PDF")
	}
	images := make([]pageImage, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("render PDF page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PDF page %d: %w", i+1, err)
		}
		images = append(images, pageImage{ext: "png", data: buf.Bytes()})
	}
	return images, nil
}

func imageExt(name string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")); ext {
	case "png", "jpg", "jpeg", "webp":
		return ext
	default:
		return ""
	}
}

// naturalLess orders strings with embedded numbers numerically
// ("page2" < "page10").
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			na, ra := takeNumber(a)
			nb, rb := takeNumber(b)
			if na != nb {
				return na < nb
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func takeNumber(s string) (int64, string) {
	var n int64
	i := 0
	for i < len(s) && isDigit(s[i]) {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	return n, s[i:]
}
