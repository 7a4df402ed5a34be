package ingestion

import "errors"

// ErrExtraction indicates the source document could not be parsed into text
// (unreadable file, unsupported format, or no extractable content). Fatal
// for the ingestion call; never retried at this layer.
var ErrExtraction = errors.New("document extraction failed")
