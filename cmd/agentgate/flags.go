package main

import "time"

// Flag structs to decouple cobra from logic for testing.

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type StatusFlags struct {
	// Remote gateway connection
	APIUrl     string
	APITimeout time.Duration
}
