package aprs

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const dialTimeout = 30 * time.Second

// ISConfig describes an APRS-IS connection.
type ISConfig struct {
	Host       string
	Port       int
	Callsign   string
	Passcode   string // "-1" logs in receive-only
	AppName    string
	AppVersion string
	Filter     string // server-side filter expression, e.g. "b/N0CALL/S53ZO"
}

// IS is a logged-in connection to an APRS-IS server. Reads block with no
// deadline; Close unblocks a pending ReadPacket. The connection never
// reconnects on its own, that decision belongs to the caller.
type IS struct {
	conn      net.Conn
	reader    *bufio.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
	loggedIn  bool
}

// Dial connects to the server and sends the login line. The banner and the
// login response arrive asynchronously and are consumed by ReadPacket.
func Dial(cfg ISConfig) (*IS, error) {
	if cfg.Callsign == "" {
		return nil, errors.New("aprs: callsign required for login")
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	log.Printf("APRS-IS: connecting to %s...", addr)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("aprs: connect %s: %w", addr, err)
	}
	c := &IS{conn: conn, reader: bufio.NewReader(conn)}
	if _, err := conn.Write([]byte(loginLine(cfg))); err != nil {
		conn.Close()
		return nil, fmt.Errorf("aprs: login write: %w", err)
	}
	log.Printf("APRS-IS: connected to %s as %s", addr, cfg.Callsign)
	return c, nil
}

func loginLine(cfg ISConfig) string {
	passcode := cfg.Passcode
	if passcode == "" {
		passcode = "-1"
	}
	name := cfg.AppName
	if name == "" {
		name = "aprsbridge"
	}
	version := cfg.AppVersion
	if version == "" {
		version = "dev"
	}
	line := fmt.Sprintf("user %s pass %s vers %s %s", cfg.Callsign, passcode, name, version)
	if cfg.Filter != "" {
		line += " filter " + cfg.Filter
	}
	return line + "\r\n"
}

// SendFilter replaces the server-side filter on the live connection without
// reconnecting.
func (c *IS) SendFilter(expr string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write([]byte("#filter " + expr + "\r\n")); err != nil {
		return fmt.Errorf("aprs: filter write: %w", err)
	}
	return nil
}

// ReadPacket blocks until the next position report arrives. Server comment
// lines and non-position payloads are skipped. Transport errors, including
// a concurrent Close, are returned as-is.
func (c *IS) ReadPacket() (*Packet, error) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if line[0] == '#' {
			if !c.loggedIn && strings.Contains(line, "logresp") {
				c.loggedIn = true
				log.Printf("APRS-IS: %s", strings.TrimSpace(line[1:]))
			}
			continue
		}
		pkt, err := ParsePacket(line)
		if err != nil {
			// Filtered feeds still carry messages, telemetry and status
			// text from the tracked stations.
			continue
		}
		return pkt, nil
	}
}

// Close shuts the connection down. Safe to call repeatedly and concurrently
// with ReadPacket.
func (c *IS) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr reports the server address of the underlying connection.
func (c *IS) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
