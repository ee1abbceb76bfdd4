package ime

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// IBus serializes its objects as D-Bus structs whose first two members are
// the type name and an attachment dictionary.

type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

type ibusLookupTable struct {
	Name          string
	Attachments   map[string]dbus.Variant
	PageSize      uint32
	CursorPos     uint32
	CursorVisible bool
	Round         bool
	Orientation   int32
	Candidates    []dbus.Variant
	Labels        []dbus.Variant
}

// Lookup table orientations.
const (
	OrientationHorizontal int32 = 0
	OrientationVertical   int32 = 1
	OrientationSystem     int32 = 2
)

// MaxCandidates is the number of candidates reachable with digit keys.
const MaxCandidates = 9

// NewText wraps s as an IBusText variant.
func NewText(s string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		AttrList: dbus.MakeVariant(ibusAttrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

// NewLookupTable builds an IBusLookupTable variant labelled 1-9. Candidates
// beyond MaxCandidates are dropped.
func NewLookupTable(candidates []string, orientation int32) dbus.Variant {
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	cands := make([]dbus.Variant, len(candidates))
	labels := make([]dbus.Variant, len(candidates))
	for i, c := range candidates {
		cands[i] = NewText(c)
		labels[i] = NewText(fmt.Sprintf("%d", i+1))
	}
	return dbus.MakeVariant(ibusLookupTable{
		Name:          "IBusLookupTable",
		Attachments:   map[string]dbus.Variant{},
		PageSize:      MaxCandidates,
		CursorPos:     0,
		CursorVisible: false,
		Round:         false,
		Orientation:   orientation,
		Candidates:    cands,
		Labels:        labels,
	})
}

// TextFromVariant extracts the string of an IBusText variant.
func TextFromVariant(v dbus.Variant) (string, error) {
	switch val := v.Value().(type) {
	case string:
		return val, nil
	case ibusText:
		return val.Text, nil
	case []any:
		if len(val) < 3 {
			return "", fmt.Errorf("IBusText: %d fields", len(val))
		}
		name, _ := val[0].(string)
		if name != "IBusText" {
			return "", fmt.Errorf("IBusText: unexpected type %q", name)
		}
		text, ok := val[2].(string)
		if !ok {
			return "", fmt.Errorf("IBusText: text field is %T", val[2])
		}
		return text, nil
	default:
		return "", fmt.Errorf("IBusText: unexpected value %T", val)
	}
}
