// Package services connects libsync to the two catalogs.
//
// # Interfaces
//
// The sync engine only sees narrow interfaces: [SourceReader] for the authoritative library, and [TargetCatalog]
// ([TargetSearcher], [TargetReader], [TargetMutator]) for the library being brought into agreement.
//
// # Spotify
//
// [SpotifyService] reads playlists, saved tracks, saved albums and followed artists. The [oauth2] client refreshes
// access tokens from the configured refresh token.
//
// # YouTube Music
//
// [YouTubeService] talks to the FastAPI proxy wrapping ytmusicapi. The headers file path is sent in the
// X-Auth-File header on each request.
//
// # Errors
//
// Mutating calls return an [OpResult] rather than an error so the caller owns retries:
//   - 429, 408, 5xx and network failures are [Transient]
//   - every other failure is [Permanent]
//   - 404 additionally wraps [ErrNotFound], the signal that evicts a cached match
//
// Read calls return errors wrapping [shared.ErrTransientAPI] or [shared.ErrPermanentAPI]; [Classify] maps them.
package services
