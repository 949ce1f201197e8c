package main

import (
	"os"

	"github.com/Cyvadra/stock-alert/internal/cli"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	os.Exit(cli.Execute(logger))
}
