package ftpserver

import (
	"path/filepath"
)

// Handle the "USER" command
func (c *clientHandler) handleUSER(param string) error {
	if c.loggedIn {
		c.writeMessage(StatusCommandNotImplemented, "Command not implemented.")

		return nil
	}

	c.candidateUser = param
	c.writeMessage(StatusUserOK, "Username received, need password.")

	return nil
}

// Handle the "PASS" command
func (c *clientHandler) handlePASS(param string) error {
	if c.loggedIn {
		c.writeMessage(StatusCommandNotImplemented, "Command not implemented.")

		return nil
	}

	if c.candidateUser == "" {
		c.writeMessage(StatusNotLoggedIn, "Please login with USER and PASS.")

		return nil
	}

	record, err := c.server.store.Authenticate(c.candidateUser, param, c.server.config.AllowAnonymous)

	c.server.Collector.AuthAttempt(err == nil)

	if err != nil {
		c.logger.Info("Authentication failure", "user", c.candidateUser)
		c.candidateUser = ""
		c.writeMessage(StatusNotLoggedIn, "Credentials incorrect.")

		return nil
	}

	home, err := filepath.Abs(record.Home)
	if err != nil {
		return newFileAccessError("could not resolve home directory", err)
	}

	if err := c.server.fs.MkdirAll(home, 0755); err != nil {
		return newFileAccessError("could not create home directory", err)
	}

	if home, err = canonicalize(c.server.fs, home); err != nil {
		return newFileAccessError("could not canonicalize home directory", err)
	}

	c.loggedIn = true
	c.user = record.Username
	c.home = home
	c.path = "/"

	c.logger.Info("Client authenticated", "user", c.user)
	c.writeMessage(StatusUserLoggedIn, "User logged in, proceed.")

	return nil
}
