// Package ftpserver implements the FTP control and data plane: the accept
// loop, the per-session command state machine, passive data connections and
// the per-user filesystem jail.
package ftpserver

// FTP reply codes, RFC 959 section 4.2.2
const (
	StatusFileStatusOK = 150 // About to open the data connection

	StatusOK              = 200
	StatusFileStatus      = 213
	StatusServiceReady    = 220
	StatusClosingControl  = 221
	StatusClosingDataConn = 226
	StatusEnteringPASV    = 227
	StatusUserLoggedIn    = 230
	StatusFileOK          = 250
	StatusPathCreated     = 257

	StatusUserOK = 331

	StatusServiceNotAvailable      = 421
	StatusCannotOpenDataConnection = 425

	StatusInternalError              = 500
	StatusSyntaxErrorParameters      = 501
	StatusCommandNotImplemented      = 502
	StatusCommandNotImplementedParam = 504
	StatusNotLoggedIn                = 530
	StatusActionNotTaken             = 550
)
