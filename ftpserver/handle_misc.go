package ftpserver

import "strings"

// Handle the "TYPE" command. Only I (binary) and A (text) are accepted;
// ASCII transfers still pass bytes through without newline translation.
func (c *clientHandler) handleTYPE(param string) error {
	switch strings.ToUpper(param) {
	case "I":
		c.transferType = TransferTypeBinary
		c.writeMessage(StatusOK, "Type set to I (binary).")
	case "A":
		c.transferType = TransferTypeASCII
		c.writeMessage(StatusOK, "Type set to A (text).")
	default:
		c.writeMessage(StatusCommandNotImplementedParam, "Command not implemented for parameter.")
	}

	return nil
}

// Handle the "MODE" command. Stream is the only supported mode.
func (c *clientHandler) handleMODE(param string) error {
	if strings.ToUpper(param) == "S" {
		c.writeMessage(StatusOK, "Mode set to S (stream).")
	} else {
		c.writeMessage(StatusCommandNotImplementedParam, "Command not implemented for parameter.")
	}

	return nil
}

// Handle the "STRU" command. File is the only supported structure.
func (c *clientHandler) handleSTRU(param string) error {
	if strings.ToUpper(param) == "F" {
		c.writeMessage(StatusOK, "Structure set to F (file).")
	} else {
		c.writeMessage(StatusCommandNotImplementedParam, "Command not implemented for parameter.")
	}

	return nil
}

// Handle the "NOOP" command
func (c *clientHandler) handleNOOP(_ string) error {
	c.writeMessage(StatusOK, "NOOP ok.")

	return nil
}

// Handle the "QUIT" command
func (c *clientHandler) handleQUIT(_ string) error {
	c.writeMessage(StatusClosingControl, "Goodbye.")
	c.closing = true

	return nil
}
