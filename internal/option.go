package internal

import "github.com/officeboard/panel/internal/board"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	board      board.Board
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath sets the path of the loaded config file so it can be
// watched for changes at runtime.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithBoard injects a board connection, bypassing the websocket gateway
// dial. Used in tests and embedded setups.
func WithBoard(b board.Board) Option {
	return func(a *application) {
		a.board = b
	}
}
