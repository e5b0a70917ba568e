// Package attachment converts user-supplied files into content blocks:
// images pass through, PDFs render to one image block per page, and docx
// files flatten to text.
package attachment

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	"go.uber.org/zap"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
)

func init() {
	// unioffice refuses to open documents without a license key. Without
	// one, docx conversion fails at open time with a license error.
	if key := os.Getenv("UNIDOC_LICENSE_API_KEY"); key != "" {
		if err := license.SetMeteredKey(key); err != nil {
			panic(fmt.Sprintf("failed to set unioffice license: %v", err))
		}
	}
}

const (
	// DefaultMaxPDFPages caps how many pages of a PDF become image blocks.
	DefaultMaxPDFPages = 20
	// DefaultMaxSizeMB caps one attachment's size.
	DefaultMaxSizeMB = 32
	// pdfRenderDPI is the raster resolution for PDF pages.
	pdfRenderDPI = 150
)

// File is one attachment to process. Name is used for error messages and
// extension sniffing only.
type File struct {
	Name string
	Data []byte
}

// Processor turns attachments into content blocks.
type Processor struct {
	maxPDFPages int
	maxBytes    int
	logger      *logger.Logger
}

// NewProcessor builds a processor from the attachment config.
func NewProcessor(cfg conf.AttachmentConfig, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.L()
	}
	maxPages := cfg.MaxPDFPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPDFPages
	}
	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = DefaultMaxSizeMB
	}
	return &Processor{
		maxPDFPages: maxPages,
		maxBytes:    maxMB << 20,
		logger:      log,
	}
}

// Process converts the files into content blocks in input order. A file the
// processor cannot identify or decode fails the whole batch, so a submission
// never silently loses an attachment.
func (p *Processor) Process(files []File) ([]chat.ContentBlock, error) {
	var blocks []chat.ContentBlock
	for _, f := range files {
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("attachment %s is empty", f.Name)
		}
		if len(f.Data) > p.maxBytes {
			return nil, fmt.Errorf("attachment %s exceeds %d MB", f.Name, p.maxBytes>>20)
		}

		converted, err := p.convert(f)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, converted...)
	}
	return blocks, nil
}

func (p *Processor) convert(f File) ([]chat.ContentBlock, error) {
	if format, ok := sniffImage(f.Data); ok {
		return []chat.ContentBlock{chat.NewImageBlock(format, f.Data)}, nil
	}
	if isPDF(f.Data) {
		return p.convertPDF(f)
	}
	if isDocx(f.Data, f.Name) {
		return p.convertDocx(f)
	}
	return nil, fmt.Errorf("unsupported attachment type for %s", f.Name)
}

// convertPDF rasterizes each page to a PNG image block, up to the page cap.
func (p *Processor) convertPDF(f File) ([]chat.ContentBlock, error) {
	doc, err := fitz.NewFromMemory(f.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", f.Name, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > p.maxPDFPages {
		p.logger.Warn("PDF exceeds page cap, truncating",
			zap.String("file", f.Name),
			zap.Int("pages", pages),
			zap.Int("cap", p.maxPDFPages),
		)
		pages = p.maxPDFPages
	}

	blocks := make([]chat.ContentBlock, 0, pages)
	for i := 0; i < pages; i++ {
		png, err := doc.ImagePNG(i, pdfRenderDPI)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d of %s: %w", i+1, f.Name, err)
		}
		blocks = append(blocks, chat.NewImageBlock(chat.ImagePNG, png))
	}
	return blocks, nil
}

// convertDocx flattens paragraphs and table cells to a single text block.
func (p *Processor) convertDocx(f File) ([]chat.ContentBlock, error) {
	doc, err := document.Read(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx %s: %w", f.Name, err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			sb.WriteString(run.Text())
		}
		sb.WriteString("\n")
	}
	for _, table := range doc.Tables() {
		for _, row := range table.Rows() {
			for _, cell := range row.Cells() {
				for _, para := range cell.Paragraphs() {
					for _, run := range para.Runs() {
						sb.WriteString(run.Text())
					}
				}
				sb.WriteString("\t")
			}
			sb.WriteString("\n")
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("docx %s has no extractable text", f.Name)
	}
	return []chat.ContentBlock{chat.NewTextBlock(text)}, nil
}

// sniffImage identifies an image by magic bytes.
func sniffImage(data []byte) (chat.ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return chat.ImagePNG, true
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return chat.ImageJPEG, true
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return chat.ImageGIF, true
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return chat.ImageWebP, true
	default:
		return "", false
	}
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isDocx checks the zip magic plus the .docx extension; a bare zip is not
// assumed to be a document.
func isDocx(data []byte, name string) bool {
	if !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), ".docx")
}
