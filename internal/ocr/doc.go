// Package ocr recognizes label text on slides and associates unfiled images
// with manifest records.
//
// Engine is the recognizer contract; CommandEngine shells out to tesseract.
// Orchestrator fans one recognition task out per item, joins them in input
// order, and feeds the filtered tokens to the matcher. Recognition failures
// are logged against the item and never abort a batch.
package ocr
