//go:build linux

package ime

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

// ErrNoIBusAddress is returned when no IBus bus address can be found.
var ErrNoIBusAddress = errors.New("ime: IBus address not found")

// ErrNameTaken is returned when another process owns the bus name.
var ErrNameTaken = errors.New("ime: bus name already taken")

// IBusAddress returns the address of the private IBus bus: $IBUS_ADDRESS,
// or the newest address file under $XDG_CONFIG_HOME/ibus/bus for this
// machine.
func IBusAddress() (string, error) {
	if addr := os.Getenv("IBUS_ADDRESS"); addr != "" {
		return addr, nil
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}

	pattern := filepath.Join(configHome, "ibus", "bus", machineID()+"-*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNoIBusAddress
	}

	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]) > modTime(matches[j])
	})
	f, err := os.Open(matches[0])
	if err != nil {
		return "", fmt.Errorf("open IBus address file: %w", err)
	}
	defer f.Close()
	return parseAddressFile(f)
}

func parseAddressFile(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if addr, ok := strings.CutPrefix(line, "IBUS_ADDRESS="); ok && addr != "" {
			return addr, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", ErrNoIBusAddress
}

func machineID() string {
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	return "*"
}

func modTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// Connect opens the IBus bus, falling back to the session bus when no
// IBus address is known.
func Connect(log *slog.Logger) (*dbus.Conn, error) {
	addr, err := IBusAddress()
	if err != nil {
		log.Warn("IBus address unavailable, using session bus", "error", err)
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("connect session bus: %w", err)
		}
		return conn, nil
	}

	conn, err := dbus.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("connect IBus bus %s: %w", addr, err)
	}
	return conn, nil
}

// Service owns the bus name and the exported factory.
type Service struct {
	conn    *dbus.Conn
	busName string
	factory *Factory
	log     *slog.Logger
}

// NewService creates a service on conn.
func NewService(conn *dbus.Conn, busName string, factory *Factory, log *slog.Logger) *Service {
	return &Service{conn: conn, busName: busName, factory: factory, log: log}
}

// Start exports the factory and requests the bus name.
func (s *Service) Start() error {
	if err := s.conn.Export(s.factory, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}

	reply, err := s.conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.busName)
	}

	s.log.Info("ibus service started", "bus_name", s.busName)
	return nil
}

// Factory returns the engine factory.
func (s *Service) Factory() *Factory { return s.factory }

// Close releases the bus name and closes the connection.
func (s *Service) Close() error {
	if _, err := s.conn.ReleaseName(s.busName); err != nil {
		s.log.Warn("release bus name failed", "error", err)
	}
	return s.conn.Close()
}
