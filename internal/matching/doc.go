// Package matching decides whether a target catalog search result is the same track, album or artist as a source entity.
//
// Free text is first canonicalized by [Normalize]. The [Matcher] then scores every candidate with a fuzzy title
// similarity combined with type specific rules:
//
//   - tracks: artist overlap, a duration tolerance and the album when both sides name one; equal ISRCs
//     short-circuit to a perfect score
//   - albums: artist overlap and track count
//   - artists: name similarity, nudged by follower count
//
// Everything here is pure and synchronous. Nothing performs I/O.
package matching
