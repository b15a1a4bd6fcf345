/*
File Name:  exit.go
Author:     Eastsea Contributors

Exit codes signal why the node process exited, so a wrapping cmd/ binary
can os.Exit with something meaningful to operators. Kept from the
teacher's Exit.go almost verbatim, extended with codes for the
subsystems this module adds (hub bind failure, tracker bind failure).
*/

package eastsea

const (
	ExitSuccess           = 0 // Graceful shutdown.
	ExitErrorConfigAccess = 1 // Error accessing the config file.
	ExitErrorConfigRead   = 2 // Error reading the config file.
	ExitErrorConfigParse  = 3 // Error parsing the config file.
	ExitErrorLogInit      = 4 // Error initializing the log file.
	ExitErrorHubBind      = 5 // Node hub could not bind any port after MaxBindRetries.
	ExitErrorTrackerBind  = 6 // Tracker server could not bind its configured address.
	ExitErrorNodeIDCreate = 7 // Could not generate a random local node ID, or could not open the blacklist database.
)
