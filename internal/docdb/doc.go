// Package docdb provides the in-memory document model of docstore.
//
// # Overview
//
// A [Document] is a JSON object carrying a mandatory string "_id". Documents
// of one collection live in a [Collection], a chained hash table keyed by
// "_id". A [Filter] compiled by [ParseFilter] selects documents with field
// predicates ($eq, $gt, $lt, $in, $like) combined by $and, $or and implicit
// conjunction.
//
// # Concurrency
//
// Nothing in this package locks. [Collection] must be guarded by the caller;
// storage.Registry does so with one reader/writer lock per database.
//
// # File Format
//
// A collection is persisted as a single JSON array of documents, see [Load]
// and [Save]. Numbers are decoded as [encoding/json.Number] so they are
// written back exactly as read.
package docdb
