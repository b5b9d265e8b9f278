package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
)

var errPageTimeout = errors.New("page extraction timeout")

func extractPDF(blob []byte) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	f, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		logger.Error("failed opening of pdf file", "error", err)
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var pages []string
	numPages := f.NumPage()
	logger.Debug("extractPDF", "number of pages", numPages)
	for i := 1; i <= numPages; i++ {
		page := f.Page(i)
		if page.V.IsNull() {
			logger.Debug("extractPDF", "null page", i)
			continue
		}

		content, err := protectExtract(page)
		if err != nil {
			// one bad page should not lose the whole document
			logger.Error("Error parsing page content", "page", i, "error", err)
			continue
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractDocxOdtRtf hands the blob to cat, which only reads from disk.
func extractDocxOdtRtf(blob []byte, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "extract-*"+ext)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	text, err := cat.File(tmp.Name())
	if err != nil {
		logger.Error("Error extracting content from doc", "error", err)
		return "", fmt.Errorf("failed to extract %s: %w", ext, err)
	}
	return text, nil
}

func extractHTML(blob []byte) (string, error) {
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(string(blob))
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return text, nil
}

func protectExtract(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{"", fmt.Errorf("page panic: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(config.PdfPageTimeout):
		return "", errPageTimeout
	}
}
