// Package fact defines the records the ingestion engine derives from raw
// GitHub events and persists in the fact store.
//
// A Fact has a handful of promoted columns (event id, kind, repository, issue)
// that the store indexes, plus a bag of attributes. Attribute values form a
// sealed union (String, Int, Bool, Array) so that every stored attribute has a
// deterministic JSON encoding:
//   - NO float types - counts and ids are int64
//   - strings are NFC normalized at the serialization boundary
//   - object keys are written in sorted order
//
// This package imports nothing internal; store, classify and engine all
// build on it.
package fact
