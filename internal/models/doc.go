// Package models defines the value types shared by every stage of a library sync.
//
// The package contains three groups of types:
//
// 1. Entities: the things being matched across catalogs
//   - [EntityType] : tagged discriminant (track, album, artist)
//   - [SourceEntity] : immutable snapshot pulled from the source catalog
//   - [Candidate] : a target catalog search result with the same shape
//
// 2. Decisions: outputs of matching and caching
//   - [MatchResult] : one per source entity per run
//   - [CacheEntry] : the persisted form of a positive match
//   - [UnmatchedRecord] : an entity that could not be matched
//
// 3. Collections: the state being reconciled
//   - [CollectionKind] : playlist, favorites, albums, artists
//   - [TargetCollection] : current state of a target collection
//   - [CollectionDiff] and [EditScript] : what must change
//
// All types are plain values; nothing here performs I/O.
package models
