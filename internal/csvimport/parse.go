// Package csvimport reads password-manager CSV exports: it detects the text
// encoding and the export layout, then extracts canonical accounts.
package csvimport

import (
	"github.com/ericfisherdev/datawipe/internal/catalog"
)

// Result is a fully parsed export.
type Result struct {
	Encoding  string
	Detection Detection
	Extraction
}

// Parser runs decoding, detection, and extraction in sequence.
type Parser struct {
	detector  *Detector
	extractor *Extractor
}

// NewParser returns a parser backed by the formats and site data in c.
func NewParser(c *catalog.Catalog) *Parser {
	return &Parser{
		detector:  NewDetector(c.Formats()),
		extractor: NewExtractor(c),
	}
}

// Parse decodes data and extracts its accounts. Any error is a *FormatError
// and means nothing was extracted.
func (p *Parser) Parse(data []byte) (Result, error) {
	table, encoding, err := Decode(data)
	if err != nil {
		return Result{}, err
	}

	detection, err := p.detector.Detect(table)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Encoding:   encoding,
		Detection:  detection,
		Extraction: p.extractor.Extract(table, detection.Mapping),
	}, nil
}
