package connector

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// DefaultPort is used when the host fields leave the port unset.
const DefaultPort = 5432

// hostURL assembles a postgres:// connection URL from the discrete host
// fields. Empty parameter values are left out; url.Values sorts the rest.
func (c Config) hostURL() (string, error) {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("invalid port: %d", port)
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
	}
	switch {
	case c.Username != "" && c.Password != "":
		u.User = url.UserPassword(c.Username, c.Password)
	case c.Username != "":
		u.User = url.User(c.Username)
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	q := url.Values{}
	for k, v := range c.Params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
