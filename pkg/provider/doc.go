// Package provider is the HTTP client for the paginated dossier API.
//
// The provider addresses records by a 1-based inclusive index range and
// caps each request at a maximum page size. FetchRange performs one
// bounded fetch with bounded retries and rate limiting; it has no side
// effects beyond the network call.
package provider
