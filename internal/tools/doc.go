// Package tools implements the analytics tool surface of the gateway.
//
// Each tool handler retrieves the credential snapshot the authentication
// middleware bound to the request context and builds a per-request
// authenticated client from it. Handlers never hold tokens between requests
// and never substitute another credential when the bound one is missing:
// an unauthenticated invocation is a tool error, full stop.
package tools
