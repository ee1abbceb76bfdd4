package ime

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ComponentFile is the file name of the installed IBus component.
const ComponentFile = "kboverlay.xml"

// Component is the IBus component description IBus reads at startup to
// learn how to launch the engine process.
type Component struct {
	XMLName     xml.Name          `xml:"component"`
	Name        string            `xml:"name"`
	Description string            `xml:"description"`
	Exec        string            `xml:"exec"`
	Version     string            `xml:"version"`
	Author      string            `xml:"author"`
	License     string            `xml:"license"`
	Homepage    string            `xml:"homepage,omitempty"`
	TextDomain  string            `xml:"textdomain"`
	Engines     []ComponentEngine `xml:"engines>engine"`
}

// ComponentEngine describes one engine of a component.
type ComponentEngine struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Author      string `xml:"author"`
	Icon        string `xml:"icon,omitempty"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol,omitempty"`
}

// DefaultComponent describes the kboverlay engine launched as exec.
func DefaultComponent(exec, engineName, busName, layout string) Component {
	return Component{
		Name:        busName,
		Description: "Keyboard overlay: diacritics, emoji and text expansion",
		Exec:        exec + " run --ibus",
		Version:     "1.0.0",
		Author:      "kboverlay",
		License:     "MIT",
		TextDomain:  "kboverlay",
		Engines: []ComponentEngine{{
			Name:        engineName,
			Language:    "other",
			License:     "MIT",
			Author:      "kboverlay",
			Icon:        "input-keyboard",
			Layout:      layout,
			LongName:    "Keyboard Overlay",
			Description: "Long-press accents, :emoji: search and abbreviations",
			Rank:        0,
			Symbol:      "⌨",
		}},
	}
}

// Marshal renders the component as an XML document.
func (c Component) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal component: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// ParseComponent decodes a component document.
func ParseComponent(data []byte) (Component, error) {
	var c Component
	if err := xml.Unmarshal(data, &c); err != nil {
		return Component{}, fmt.Errorf("parse component: %w", err)
	}
	return c, nil
}

// InstallComponent writes c into dir and returns the file path.
func InstallComponent(dir string, c Component) (string, error) {
	data, err := c.Marshal()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create component dir: %w", err)
	}
	path := filepath.Join(dir, ComponentFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write component: %w", err)
	}
	return path, nil
}

// UninstallComponent removes the component file from dir. A missing file
// is not an error.
func UninstallComponent(dir string) error {
	err := os.Remove(filepath.Join(dir, ComponentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove component: %w", err)
	}
	return nil
}
