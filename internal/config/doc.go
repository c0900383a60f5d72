// Package config loads the gateway's tenant credential configuration.
//
// Configuration is a single YAML file naming the gateway's listen address,
// the OAuth token endpoint, and the tenants the gateway serves. Each tenant
// entry carries the Google OAuth client credentials and long-lived refresh
// token obtained during onboarding.
//
// Loading is all-or-nothing: if any tenant entry is missing a required
// field, or two entries share a tenant id, the whole file is rejected with
// ErrMalformed and the gateway refuses to start. A partially-loaded tenant
// roster would silently lock out the dropped tenants, which is worse than a
// loud startup failure.
//
// The file is read once at startup. Changing the tenant roster requires a
// restart.
package config
