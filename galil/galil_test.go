package galil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type NoopCloser struct {
	io.Reader
	write bytes.Buffer
}

func (nc *NoopCloser) Write(p []byte) (n int, err error) {
	return nc.write.Write(p)
}

func (nc NoopCloser) Close() error {
	return nil
}

func TestParseDescriptor(t *testing.T) {
	for _, test := range []struct {
		input   string
		want    Descriptor
		wantErr bool
	}{
		{"192.168.0.5", Descriptor{Address: "192.168.0.5", Baud: DefaultBaud}, false},
		{"192.168.0.5 -d", Descriptor{Address: "192.168.0.5", Direct: true, Baud: DefaultBaud}, false},
		{"/dev/ttyUSB0 --baud 19200", Descriptor{Address: "/dev/ttyUSB0", Baud: 19200}, false},
		{"  COM3   -b 9600 -d ", Descriptor{Address: "COM3", Direct: true, Baud: 9600}, false},
		{"", Descriptor{}, true},
		{"host --baud", Descriptor{}, true},
		{"host --baud fast", Descriptor{}, true},
		{"host -x", Descriptor{}, true},
	} {
		t.Run(test.input, func(t *testing.T) {
			got, err := ParseDescriptor(test.input)
			if (err != nil) != test.wantErr {
				t.Fatalf("ParseDescriptor(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
			}
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("unexpected descriptor: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestDescriptorTransport(t *testing.T) {
	for _, test := range []struct {
		address  string
		serial   bool
		hostPort string
	}{
		{"/dev/ttyS1", true, ""},
		{"com4", true, ""},
		{"10.0.0.2", false, "10.0.0.2:23"},
		{"10.0.0.2:5023", false, "10.0.0.2:5023"},
	} {
		d := Descriptor{Address: test.address}
		if got := d.IsSerial(); got != test.serial {
			t.Errorf("%q IsSerial = %v, want %v", test.address, got, test.serial)
		}
		if !test.serial {
			if got := d.hostPort(); got != test.hostPort {
				t.Errorf("%q hostPort = %q, want %q", test.address, got, test.hostPort)
			}
		}
	}
}

func TestConnFraming(t *testing.T) {
	for _, test := range []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"accepted", ":", "", nil},
		{"data", " 1234\r\n:", "1234", nil},
		{"rejected", "?", "", ErrRejected},
		{"eof", "12", "", io.EOF},
	} {
		t.Run(test.name, func(t *testing.T) {
			nc := &NoopCloser{Reader: strings.NewReader(test.input)}
			c := NewConn(nc)
			got, err := c.Command("TP X")
			if !errors.Is(err, test.wantErr) {
				t.Errorf("Command error = %v, want %v", err, test.wantErr)
			}
			if got != test.want {
				t.Errorf("Command = %q, want %q", got, test.want)
			}
			if diff := cmp.Diff(nc.write.String(), "TP X\r"); diff != "" {
				t.Errorf("unexpected wire bytes: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestConnRefusesMultiCommand(t *testing.T) {
	nc := &NoopCloser{Reader: strings.NewReader(":")}
	c := NewConn(nc)
	for _, cmd := range []string{"ST;BG", "ST\rBG", "ST\n"} {
		if _, err := c.Command(cmd); !errors.Is(err, ErrMultiCommand) {
			t.Errorf("Command(%q) error = %v, want ErrMultiCommand", cmd, err)
		}
	}
	if nc.write.Len() != 0 {
		t.Errorf("wrote %q, want nothing", nc.write.String())
	}
}

func TestConnClose(t *testing.T) {
	c := NewConn(&NoopCloser{Reader: strings.NewReader("")})
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
	if _, err := c.Command("ST"); !errors.Is(err, ErrClosed) {
		t.Errorf("Command after Close = %v, want ErrClosed", err)
	}
}

func TestParseValues(t *testing.T) {
	got, err := ParseValues(" 1.0000 0.0000\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, []float64{1, 0}); diff != "" {
		t.Errorf("unexpected values: got(-)/want(+):\n%s", diff)
	}
	if _, err := ParseValues("1.0, x"); err == nil {
		t.Error("ParseValues accepted garbage")
	}
	n, err := ParseCounts(" -1500.0")
	if err != nil || n != -1500 {
		t.Errorf("ParseCounts = %d, %v, want -1500", n, err)
	}
}

// fakeHandle answers from a table and records every command.
type fakeHandle struct {
	answers map[string]string
	reject  map[string]bool
	tcFails bool
	sent    []string
}

func (h *fakeHandle) Command(cmd string) (string, error) {
	h.sent = append(h.sent, cmd)
	if cmd == "TC" {
		if h.tcFails {
			return "", io.ErrUnexpectedEOF
		}
		return "7", nil
	}
	if h.reject[cmd] {
		return "", ErrRejected
	}
	return h.answers[cmd], nil
}

func (h *fakeHandle) SetTimeout(time.Duration) error { return nil }
func (h *fakeHandle) Close() error                   { return nil }

func TestChannelSend(t *testing.T) {
	h := &fakeHandle{
		answers: map[string]string{"TP X": " 250\r\n"},
		reject:  map[string]bool{"BG XY": true},
	}
	c := NewChannel(h)

	resp, err := c.Send("TP X", false)
	if err != nil || resp != "250" {
		t.Errorf("Send(TP X) = %q, %v", resp, err)
	}

	_, err = c.Send("BG XY", true)
	var cerr *CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("Send(BG XY) error = %v, want *CommandError", err)
	}
	if cerr.Command != "BG XY" || cerr.Diagnostic != "7" || !errors.Is(err, ErrRejected) {
		t.Errorf("unexpected error %+v", cerr)
	}

	h.tcFails = true
	_, err = c.Send("BG XY", true)
	if !errors.As(err, &cerr) || cerr.Diagnostic != DiagnosticUnavailable {
		t.Errorf("diagnostic = %+v, want %q", err, DiagnosticUnavailable)
	}

	if diff := cmp.Diff(h.sent, []string{"TP X", "BG XY", "TC", "BG XY", "TC"}); diff != "" {
		t.Errorf("unexpected commands: got(-)/want(+):\n%s", diff)
	}
}

func TestChannelRefusesMultiCommand(t *testing.T) {
	h := &fakeHandle{}
	c := NewChannel(h)
	if _, err := c.Send("PA 1,1;BG XY", false); !errors.Is(err, ErrMultiCommand) {
		t.Errorf("Send error = %v, want ErrMultiCommand", err)
	}
	if len(h.sent) != 0 {
		t.Errorf("sent %q, want nothing", h.sent)
	}
}

func TestChannelInPosition(t *testing.T) {
	for _, test := range []struct {
		answer string
		want   bool
	}{
		{" 1.0000 1.0000", true},
		{" 1.0000 0.0000", false},
		{"0,0", false},
	} {
		h := &fakeHandle{answers: map[string]string{"MG _TNX,_TNY": test.answer}}
		got, err := NewChannel(h).InPosition()
		if err != nil {
			t.Fatalf("InPosition(%q): %v", test.answer, err)
		}
		if got != test.want {
			t.Errorf("InPosition(%q) = %v, want %v", test.answer, got, test.want)
		}
	}
	h := &fakeHandle{answers: map[string]string{"MG _TNX,_TNY": "1.0"}}
	if _, err := NewChannel(h).InPosition(); err == nil {
		t.Error("truncated answer accepted")
	}
}

func mustSend(t *testing.T, c *Channel, cmd string) string {
	t.Helper()
	resp, err := c.Send(cmd, true)
	if err != nil {
		t.Fatalf("%s: %v", cmd, err)
	}
	return resp
}

func TestSimulatorMove(t *testing.T) {
	sim := NewSimulator()
	h, err := sim.Open("sim")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	c := NewChannel(h)

	for _, cmd := range []string{"SH XY", "PA 1000,-2000", "BG XY"} {
		mustSend(t, c, cmd)
	}
	if in, err := c.InPosition(); err != nil || in {
		t.Errorf("InPosition before motion = %v, %v, want false", in, err)
	}
	sim.Advance(time.Second)
	if x, y := sim.Position(); x != 1000 || y != -2000 {
		t.Errorf("Position = %d,%d, want 1000,-2000", x, y)
	}
	if in, err := c.InPosition(); err != nil || !in {
		t.Errorf("InPosition after motion = %v, %v, want true", in, err)
	}
	if n, err := c.Counts("Y"); err != nil || n != -2000 {
		t.Errorf("Counts(Y) = %d, %v", n, err)
	}

	mustSend(t, c, "PR 500,500")
	mustSend(t, c, "BG XY")
	sim.Advance(time.Second)
	if x, y := sim.Position(); x != 1500 || y != -1500 {
		t.Errorf("Position = %d,%d, want 1500,-1500", x, y)
	}
}

func TestSimulatorTracking(t *testing.T) {
	sim := NewSimulator()
	h, err := sim.Open("sim")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	c := NewChannel(h)

	mustSend(t, c, "SH XY")
	mustSend(t, c, "PA 100000,100000")
	mustSend(t, c, "BG XY")

	_, err = c.Send("PT 1,1", true)
	var cerr *CommandError
	if !errors.As(err, &cerr) || cerr.Diagnostic != "7" {
		t.Fatalf("PT while profiling = %v, want TC 7", err)
	}

	mustSend(t, c, "ST")
	mustSend(t, c, "PT 1,1")
	if !sim.Tracking() {
		t.Fatal("tracking not enabled")
	}
	if _, err := c.Send("BG XY", true); !errors.Is(err, ErrRejected) {
		t.Errorf("BG while tracking = %v, want rejection", err)
	}
	if _, err := c.Send("PR 10,10", true); !errors.Is(err, ErrRejected) {
		t.Errorf("PR while tracking = %v, want rejection", err)
	}

	mustSend(t, c, "PA 500,-500")
	sim.Advance(time.Second)
	if x, y := sim.Position(); x != 500 || y != -500 {
		t.Errorf("Position = %d,%d, want 500,-500", x, y)
	}

	mustSend(t, c, "PT 0,0")
	if sim.Tracking() {
		t.Error("tracking still enabled")
	}
}

func TestSimulatorRejections(t *testing.T) {
	sim := NewSimulator()
	h, err := sim.Open("sim")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	c := NewChannel(h)

	for _, test := range []struct {
		cmd  string
		code string
	}{
		{"XQ", "1"},
		{"BG XY", "20"},
		{"SP 0,0", "6"},
		{"PA", "18"},
	} {
		_, err := c.Send(test.cmd, true)
		var cerr *CommandError
		if !errors.As(err, &cerr) || cerr.Diagnostic != test.code {
			t.Errorf("%s = %v, want TC %s", test.cmd, err, test.code)
		}
	}

	sim.Reject("SH XY", CodeUnrecognized)
	if _, err := c.Send("SH XY", true); err == nil {
		t.Error("SH XY accepted despite reject rule")
	}
	mustSend(t, c, "SH X")
	sim.Reject("SH XY", CodeNone)
	mustSend(t, c, "SH XY")

	want := []string{"XQ", "TC", "BG XY", "TC", "SP 0,0", "TC", "PA", "TC", "SH XY", "TC", "SH X", "SH XY"}
	if diff := cmp.Diff(sim.History(), want); diff != "" {
		t.Errorf("unexpected history: got(-)/want(+):\n%s", diff)
	}
	sim.ClearHistory()
	if len(sim.History()) != 0 {
		t.Error("history not cleared")
	}
}

func TestSimulatorIdentify(t *testing.T) {
	sim := NewSimulator()
	h, err := sim.Open("sim")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()
	rev, err := h.Command(identify)
	if err != nil || !strings.HasPrefix(rev, "DMC") {
		t.Errorf("identify = %q, %v", rev, err)
	}
}
