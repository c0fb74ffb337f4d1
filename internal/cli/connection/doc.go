// Package connection is the tokgate-cli HTTP client for the auth core.
//
// Admin calls carry X-Admin-Token, internal calls X-Internal-Token. Error
// responses are decoded from the standard envelope into *APIError.
package connection
