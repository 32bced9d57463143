// Package config loads mmrunner configuration.
//
// Values are layered in this order, later layers winning:
//
//  1. defaults registered with WithDefaults
//  2. config.yml (explicit path or the first one found in the search paths)
//  3. a .env file, loaded into the process environment with godotenv
//  4. environment variables, bound to nested keys (RUNNER_GRACE_PERIOD sets
//     runner.grace_period)
//
// Usage:
//
//	var cfg Config
//	err := config.LoadConfig("mmrunner", &cfg, config.WithConfigFile(path))
package config
