// Package extract turns uploaded file bytes into plain text for chunking.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"

	"docqa/internal/rag"
)

// SupportedExtensions lists the extensions Text understands.
var SupportedExtensions = []string{".txt", ".md", ".pdf", ".xlsx", ".docx", ".odt", ".rtf"}

func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Text extracts the textual content of a file based on its extension
// (including the leading dot).
func Text(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".txt", ".md":
		return plain(content), nil
	case ".pdf":
		return pdfText(content)
	case ".xlsx":
		return excelText(content)
	case ".docx", ".odt", ".rtf":
		s, err := cat.FromBytes(content)
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		return strings.TrimSpace(s), nil
	default:
		return "", rag.NewFieldError("file", fmt.Sprintf("unsupported file type %q", ext))
	}
}

// plain returns content as a string, replacing invalid UTF-8 sequences.
func plain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var buf bytes.Buffer
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		buf.WriteString(s)
		if i < n {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}

func excelText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String()), nil
}
