package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string   address and port of the backend server
//	-i int      online check interval in seconds
//	-d string   path of the local database
//	-r int      inspection retention in months
//	-w int      first snapshot wait in milliseconds
//	-o          offline mode
//	-l string   log level
//
// Only the flags above are parsed; everything else on the command line is
// left for other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-d", "-r", "-w", "-o", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database file")
	fs.IntVar(&cfg.RetentionMonths, "r", cfg.RetentionMonths, "inspection retention (in months)")
	firstSnapshotWait := fs.Int("w", int(cfg.FirstSnapshotWait.Milliseconds()), "first snapshot wait (in milliseconds)")
	fs.BoolVar(&cfg.Offline, "o", cfg.Offline, "run offline against in-memory stand-ins")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.FirstSnapshotWait = time.Duration(*firstSnapshotWait) * time.Millisecond
}
