package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/domain/commonModels"
	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
)

const TruncationMarker = "[... document truncated ...]"

var logger = logger_i.NewLogger("Text Extraction")

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	lineEdges  = regexp.MustCompile(` *\n *`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

func GetDocType(filename string) commonModels.DocType {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return commonModels.PDF
	case ".docx", ".odt", ".rtf":
		return commonModels.DOCX
	case ".txt", ".md", ".csv":
		return commonModels.TXT
	case ".html", ".htm":
		return commonModels.HTML
	default:
		// .doc, .ppt and .xls are binary formats none of the readers understand
		return commonModels.ERR
	}
}

// Extract returns the normalized plain text of blob, truncated to the default limit.
func Extract(blob []byte, filename string) (string, error) {
	return ExtractLimit(blob, filename, config.MaxExtractedChars)
}

func ExtractLimit(blob []byte, filename string, maxChars int) (string, error) {
	docType := GetDocType(filename)
	logger.Debug("extracting document", "filename", filename, "type", docType, "bytes", len(blob))

	var (
		text string
		err  error
	)
	switch docType {
	case commonModels.PDF:
		text, err = extractPDF(blob)
	case commonModels.DOCX:
		text, err = extractDocxOdtRtf(blob, filepath.Ext(filename))
	case commonModels.TXT:
		text = string(blob)
	case commonModels.HTML:
		text, err = extractHTML(blob)
	default:
		return "", fmt.Errorf("%w: %s", jobModel.ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filename, err)
	}
	return Truncate(Normalize(text), maxChars), nil
}

// Normalize unifies line endings, collapses runs of blanks and limits blank lines
// to one.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = lineEdges.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate keeps at most maxChars runes and marks the cut. maxChars <= 0 disables it.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	logger.Warn("document truncated", "runes", len(runes), "limit", maxChars)
	return string(runes[:maxChars]) + "\n\n" + TruncationMarker
}
