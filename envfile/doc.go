// Package envfile assembles the per-app environment context.
//
// The context is ephemeral and rebuilt on every operation. Assembly
// order fixes precedence: host defaults first, then host identity,
// then every sourced app's exported variables (later entries shadow
// earlier ones), then the target app's identity fields last so no
// sourced app can override them. Exported variables are filtered
// against a reserved-key set before merging.
package envfile
