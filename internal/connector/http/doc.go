// Package http provides the rate-limited JSON HTTP client shared by the
// catalog session client, the data file fetcher and webhook enrichment.
//
// Structure:
//
//	client.go - HTTP client with rate limiting and optional retry
//	auth.go   - Authentication strategies (API key header, Bearer)
package http
