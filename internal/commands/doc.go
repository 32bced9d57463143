// Package commands implements the mmrunner command line: run, tui, serve,
// token and version, all driven by one Config loaded from config.yml, the
// environment and an optional .env file.
package commands
