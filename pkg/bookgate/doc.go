// Package bookgate provides a reusable library for distributing
// book-style learning resources behind activation codes, with
// pluggable repository and blob storage backends.
//
// It exposes a single Service interface that orchestrates resource
// publishing (a document plus cover, per-page audio/video, teacher
// material, classroom companions and glossaries), activation code
// issuance, code redemption and entitlement resolution.
// Implementations of repositories (e.g., memory, Postgres) and blob
// stores (e.g., memory, filesystem, S3) are provided under
// subpackages.
//
// # Files and consistency
//
// Resource records store public URLs; the bytes behind them live in a
// BlobStore. Mutations upload new files first, persist the updated
// record, and only then reclaim replaced files, so a failed mutation
// never leaves a record pointing at missing files. Reclamation is
// best-effort: a flaky storage backend can leak orphaned files but
// never dangling references.
package bookgate
