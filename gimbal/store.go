package gimbal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Position is the persisted pointing, in gimbal-frame degrees.
type Position struct {
	Azimuth   float64
	Elevation float64
	Reserved  float64
}

// Store persists the last position across sessions. Neither method fails:
// a Store that cannot load returns the zero Position.
type Store interface {
	Load() Position
	Save(p Position)
}

// FileStore keeps the position as three numbers, one per line.
type FileStore struct {
	Path string
}

func (s FileStore) Load() Position {
	p, err := s.read()
	if err != nil {
		logrus.Debugf("no saved position: %v", err)
		return Position{}
	}
	return p
}

func (s FileStore) read() (Position, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Position{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 3 {
		return Position{}, errors.Errorf("%s: want 3 values, got %d", s.Path, len(fields))
	}
	var v [3]float64
	for i, f := range fields {
		if v[i], err = strconv.ParseFloat(f, 64); err != nil {
			return Position{}, errors.Wrapf(err, "parsing %s", s.Path)
		}
	}
	return Position{Azimuth: v[0], Elevation: v[1], Reserved: v[2]}, nil
}

func (s FileStore) Save(p Position) {
	if err := s.write(p); err != nil {
		logrus.Warnf("saving position: %v", err)
	}
}

func (s FileStore) write(p Position) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "creating state directory")
		}
	}
	data := fmt.Sprintf("%.18e\n%.18e\n%.18e\n", p.Azimuth, p.Elevation, p.Reserved)
	return errors.Wrapf(os.WriteFile(s.Path, []byte(data), 0644), "writing %s", s.Path)
}

type discardStore struct{}

func (discardStore) Load() Position { return Position{} }
func (discardStore) Save(Position)  {}
