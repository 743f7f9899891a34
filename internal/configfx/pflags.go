package configfx

import (
	"os"

	"github.com/spf13/pflag"
)

func PFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	fs.StringP("config", "c", "", "Config file")
	fs.String("log.level", "info", "Log level")
	fs.String("server.address", defaultServerAddress, "API listen address")

	_ = fs.Parse(os.Args[1:])

	return fs
}
