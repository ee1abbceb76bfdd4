package overlay

// builtinDiacritics maps a lowercase base letter to its accented variants,
// ordered by how often they are wanted on Latin-script layouts.
var builtinDiacritics = map[rune][]string{
	'a': {"á", "à", "â", "ä", "ã", "å", "ā", "ă", "ą"},
	'c': {"ç", "ć", "č"},
	'e': {"é", "è", "ê", "ë", "ē", "ė", "ę", "€"},
	'i': {"í", "ì", "î", "ï", "ī", "į"},
	'n': {"ñ", "ń"},
	'o': {"ó", "ò", "ô", "ö", "õ", "ō", "ø"},
	's': {"ś", "š", "ß"},
	'u': {"ú", "ù", "û", "ü", "ū", "ů"},
	'y': {"ý", "ÿ"},
	'z': {"ź", "ż", "ž"},
	'l': {"ł"},
	'g': {"ğ"},
	'r': {"ř"},
	't': {"ť"},
	'd': {"ď"},
	'h': {"ħ"},
}

// DiacriticTable maps lowercase base letters to variant strings.
type DiacriticTable map[rune][]string

// DefaultDiacritics returns a copy of the built-in table.
func DefaultDiacritics() DiacriticTable {
	return copyTable(builtinDiacritics)
}

// Merge returns a copy of t with every entry of other replacing the entry
// for the same letter. Entries of other with no variants remove the letter.
func (t DiacriticTable) Merge(other DiacriticTable) DiacriticTable {
	out := copyTable(t)
	for base, variants := range other {
		if len(variants) == 0 {
			delete(out, base)
			continue
		}
		out[base] = append([]string(nil), variants...)
	}
	return out
}

// Lookup returns the variants for base, which must already be lowercase.
func (t DiacriticTable) Lookup(base rune) []string {
	return t[base]
}

func copyTable(in map[rune][]string) DiacriticTable {
	out := make(DiacriticTable, len(in))
	for base, variants := range in {
		out[base] = append([]string(nil), variants...)
	}
	return out
}
