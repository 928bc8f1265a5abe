// Package galil speaks the ASCII command protocol of Galil-style motion
// controllers.
//
// One command is sent per transmission, terminated by a carriage return. The
// controller answers with optional data followed by ':' when the command was
// accepted, or with '?' when it was rejected; the reason for a rejection is
// read back with TC.
package galil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"github.com/w1xm/galil_gimbal/galil/internal/status"
)

const (
	// DefaultPort is the controller's TCP command port.
	DefaultPort = "23"
	// DefaultBaud is used for serial descriptors without --baud.
	DefaultBaud = 115200
	// DirectFlag skips the identification handshake when opening.
	DirectFlag = "-d"

	dialTimeout = 3 * time.Second
	// identify is ^R^V, which returns the firmware revision.
	identify = "\x12\x16"
)

var (
	// ErrRejected is returned when the controller answers '?'.
	ErrRejected = errors.New("command rejected by controller")
	// ErrClosed is returned by a Handle used after Close.
	ErrClosed = errors.New("connection closed")
	// ErrMultiCommand is returned for command text that would put more
	// than one command on the wire.
	ErrMultiCommand = errors.New("one command per transmission")
	// ErrUnknownFlag is returned for descriptor flags that are not understood.
	ErrUnknownFlag = errors.New("unknown connection flag")
)

// Handle is an open session with one controller.
type Handle interface {
	// Command sends one command and returns the controller's answer
	// without the trailing terminator.
	Command(cmd string) (string, error)
	SetTimeout(d time.Duration) error
	Close() error
}

// Opener opens sessions from connection descriptors.
type Opener interface {
	Open(descriptor string) (Handle, error)
}

type OpenerFunc func(descriptor string) (Handle, error)

func (f OpenerFunc) Open(descriptor string) (Handle, error) {
	return f(descriptor)
}

// DefaultOpener opens real TCP or serial connections.
var DefaultOpener Opener = OpenerFunc(Dial)

// Descriptor is a parsed connection string, "<address> [flags]".
type Descriptor struct {
	Address string
	Direct  bool
	Baud    int
}

// ParseDescriptor parses a connection string. Understood flags are -d and
// --baud/-b N.
func ParseDescriptor(s string) (Descriptor, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Descriptor{}, errors.New("empty connection descriptor")
	}
	d := Descriptor{Address: fields[0], Baud: DefaultBaud}
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case DirectFlag:
			d.Direct = true
		case "--baud", "-b":
			if i+1 >= len(fields) {
				return Descriptor{}, fmt.Errorf("%s needs a value", fields[i])
			}
			i++
			baud, err := strconv.Atoi(fields[i])
			if err != nil || baud <= 0 {
				return Descriptor{}, fmt.Errorf("bad baud rate %q", fields[i])
			}
			d.Baud = baud
		default:
			return Descriptor{}, fmt.Errorf("%w %q", ErrUnknownFlag, fields[i])
		}
	}
	return d, nil
}

// IsSerial reports whether the address names a serial device.
func (d Descriptor) IsSerial() bool {
	return strings.HasPrefix(d.Address, "/dev/") || strings.HasPrefix(strings.ToUpper(d.Address), "COM")
}

func (d Descriptor) hostPort() string {
	if _, _, err := net.SplitHostPort(d.Address); err == nil {
		return d.Address
	}
	return net.JoinHostPort(d.Address, DefaultPort)
}

// Dial opens a TCP or serial connection described by descriptor. Unless the
// descriptor carries -d, the controller must answer the identification
// query before the handle is returned.
func Dial(descriptor string) (Handle, error) {
	d, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	var rwc io.ReadWriteCloser
	if d.IsSerial() {
		rwc, err = serial.OpenPort(&serial.Config{
			Name:        d.Address,
			Baud:        d.Baud,
			ReadTimeout: dialTimeout,
		})
	} else {
		rwc, err = net.DialTimeout("tcp", d.hostPort(), dialTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", d.Address, err)
	}
	c := NewConn(rwc)
	if !d.Direct {
		rev, err := c.Command(identify)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("identifying %q: %w", d.Address, err)
		}
		logrus.Infof("opened %q: %s", d.Address, rev)
	} else {
		logrus.Infof("opened %q", d.Address)
	}
	return c, nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn is a Handle over any byte stream.
type Conn struct {
	mu      sync.Mutex
	rwc     io.ReadWriteCloser
	r       *bufio.Reader
	timeout time.Duration
}

func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{rwc: rwc, r: bufio.NewReader(rwc)}
}

// SetTimeout bounds each command round trip. It only has an effect on
// streams that support deadlines.
func (c *Conn) SetTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rwc == nil {
		return ErrClosed
	}
	c.timeout = d
	return nil
}

func (c *Conn) Command(cmd string) (string, error) {
	if strings.ContainsAny(cmd, "\r\n;") {
		return "", ErrMultiCommand
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rwc == nil {
		return "", ErrClosed
	}
	if dl, ok := c.rwc.(deadliner); ok && c.timeout > 0 {
		dl.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := io.WriteString(c.rwc, cmd+"\r"); err != nil {
		return "", fmt.Errorf("writing %q: %w", cmd, err)
	}
	return c.readResponse()
}

func (c *Conn) readResponse() (string, error) {
	var buf []byte
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("reading response: %w", err)
		}
		switch b {
		case ':':
			return strings.TrimSpace(string(buf)), nil
		case '?':
			return strings.TrimSpace(string(buf)), ErrRejected
		}
		buf = append(buf, b)
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rwc == nil {
		return ErrClosed
	}
	err := c.rwc.Close()
	c.rwc = nil
	return err
}

// ParseCounts parses a TP answer into counts.
func ParseCounts(resp string) (int, error) {
	var f float64
	if err := status.ParseFloat(&f, resp); err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// ParseValues parses a whitespace or comma separated MG answer.
func ParseValues(resp string) ([]float64, error) {
	fields := strings.FieldsFunc(resp, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
	out := make([]float64, len(fields))
	for i, field := range fields {
		if err := status.ParseFloat(&out[i], field); err != nil {
			return nil, err
		}
	}
	return out, nil
}
