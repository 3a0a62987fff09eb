// Package remote implements the account collaborators that talk to the
// authorization server over HTTP: code exchange, token refresh, profile and
// device command retrieval, and provider discovery.
package remote
