package main

import (
	"os"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/urfave/cli/v2"

	"github.com/mild-blue/shepherd/cmd"
)

func main() {
	app := &cli.App{
		Name:  "shepherd",
		Usage: "Dispatches jobs across a fleet of bare and containerized worker processes",
		Commands: []*cli.Command{
			cmd.ServeCommand,
			cmd.SubmitCommand,
			cmd.StatusCommand,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		// log fatal so we exit with the proper exit code, this is important for containerized deployment health checks
		logging.Log.WithError(err).Fatal("runtime error")
	}
}
