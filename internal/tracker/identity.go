package tracker

import "strings"

// DeriveName turns a domain or URL into a stable tracker identity:
// scheme stripped, first dotted label, capitalized. "https://eiga.moi"
// and "eiga.moi" both become "Eiga". Names without a dot pass through
// unchanged so explicitly-named adapters keep their spelling.
func DeriveName(raw string) string {
	name := strings.TrimPrefix(raw, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.TrimSuffix(name, "/")
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
		name = strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
	}
	return name
}
