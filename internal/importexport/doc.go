// Package importexport drives bulk ingestion from the import directory and
// bulk export of finished items.
//
// Ingest reads every CSV manifest under the import directory, imports new
// image files as items, files those whose name matches a manifest image id
// straight into ingest/{token}, and parks the rest in the unfiled folder
// carrying the unmatched manifest rows for later OCR association. Export
// copies finished items to the export directory, an S3-compatible bucket, or
// both, and appends an export history entry per destination.
//
// Both operations hold their cross-process lock for the whole run and write a
// CSV summary into the reports folder when one is bound.
package importexport
