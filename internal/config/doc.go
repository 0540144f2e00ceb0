// Package config owns Loom's TOML configuration: defaults, ~-expansion,
// environment fallbacks for provider keys (ELEVENLABS_API_KEY and friends),
// and validation.
//
// Everything downstream reads settings through Config so paths arrive
// expanded, log formats canonical, and misconfiguration surfaces as one
// validation error at startup instead of scattered failures mid-pipeline.
package config
