package constants

import "errors"

// Configuration errors.
var (
	ErrNoTenantsConfigured = errors.New("no tenants configured, use 'crm tenants add' to add one")
	ErrTenantNotFound      = errors.New("tenant configuration not found")
	ErrTenantExists        = errors.New("tenant already configured, remove it first")
	ErrNoPasswordAvailable = errors.New("no password available, run 'crm login' or set CRM_PASSWORD")
)

// Validation errors.
var (
	ErrInvalidOutputFormat  = errors.New("invalid output format, use table, json or yaml")
	ErrInvalidMaxConcurrent = errors.New("--max-concurrent must be at least 1")
	ErrInvalidLoginResponse = errors.New("login response is missing access_token or instance_url")
)
