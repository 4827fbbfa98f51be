package ftpclient

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// parsePasvReply extracts the advertised host and port from the text of a
// 227 reply: "Entering Passive Mode (h1,h2,h3,h4,p1,p2)."
func parsePasvReply(text string) (string, int, error) {
	start := strings.Index(text, "(")
	end := strings.LastIndex(text, ")")

	if start == -1 || end == -1 || end < start {
		return "", 0, fmt.Errorf("invalid PASV reply format: %q", text)
	}

	parts := strings.Split(text[start+1:end], ",")
	if len(parts) != 6 {
		return "", 0, fmt.Errorf("invalid PASV reply format: %q", text)
	}

	numbers := make([]int, 6)

	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return "", 0, fmt.Errorf("invalid PASV reply format: %q", text)
		}

		numbers[i] = n
	}

	host := fmt.Sprintf("%d.%d.%d.%d", numbers[0], numbers[1], numbers[2], numbers[3])
	port := numbers[4]<<8 | numbers[5]

	return host, port, nil
}

// isPrivateAddr reports whether an IPv4 address is RFC 1918 private or
// loopback.
func isPrivateAddr(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return ip.IsPrivate() || ip.IsLoopback()
}

// dialBackHost picks the address to dial for a data connection. A private
// advertised address is the server's NAT-internal one and unreachable from
// here; the control host is what actually routes. A public advertised
// address is trusted as-is.
func (c *Client) dialBackHost(advertised string) string {
	if isPrivateAddr(advertised) && advertised != c.host {
		fmt.Fprintf(c.out, "Detected private IP: %s. Using server IP instead: %s.\n\n", advertised, c.host)

		return c.host
	}

	return advertised
}

// openDataConn negotiates a passive data connection. Servers behind NAT
// frequently advertise their internal address, so a private advertised host
// is replaced by the control connection's host; the advertised port is
// always authoritative.
func (c *Client) openDataConn() (net.Conn, error) {
	reply, err := c.sendCommand("PASV")
	if err != nil {
		return nil, err
	}

	if reply.Code != 227 {
		fmt.Fprintf(c.out, "Failed to start data connection.\n\n")

		return nil, fmt.Errorf("error opening data connection: %w", &ProtocolError{Reply: reply})
	}

	host, port, err := parsePasvReply(reply.Text)
	if err != nil {
		return nil, err
	}

	host = c.dialBackHost(host)

	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("could not open data connection to %s:%d: %w", host, port, err)
	}

	return conn, nil
}
