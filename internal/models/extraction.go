package models

// Source identifies which extractor produced the text of a result.
type Source string

const (
	SourcePDFParser Source = "pdf-parser"
	SourceBasicOCR  Source = "basic-ocr"
)

// FileAsset is one uploaded file, owned by the pipeline for a single request.
// Whatever temporary storage backed Bytes has already been released by the
// time a FileAsset is built.
type FileAsset struct {
	Bytes            []byte
	DeclaredMIMEType string
	OriginalFilename string
	SizeBytes        int64
}

// NewFileAsset builds a FileAsset whose size is taken from the buffer.
func NewFileAsset(data []byte, declaredMIMEType, originalFilename string) FileAsset {
	return FileAsset{
		Bytes:            data,
		DeclaredMIMEType: declaredMIMEType,
		OriginalFilename: originalFilename,
		SizeBytes:        int64(len(data)),
	}
}

// ExtractionResult is the successful outcome of one extraction request.
type ExtractionResult struct {
	Success       bool     `json:"success"`
	ExtractedText string   `json:"extractedText"`
	Names         []string `json:"names"`
	Count         int      `json:"count"`
	Source        Source   `json:"source"`
}

// NewExtractionResult assembles a result; Count always mirrors len(names).
func NewExtractionResult(text string, names []string, source Source) *ExtractionResult {
	if names == nil {
		names = []string{}
	}
	return &ExtractionResult{
		Success:       true,
		ExtractedText: text,
		Names:         names,
		Count:         len(names),
		Source:        source,
	}
}
