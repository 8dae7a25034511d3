package workspace

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/psrf/sows-cli/internal/geoerr"
)

const (
	fidColumn  = "fid"
	geomColumn = "geom"
	maxNameLen = 64
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName checks that name can be used as a dataset or field name.
func ValidateName(name string) error {
	if !validName.MatchString(name) || len(name) > maxNameLen {
		return geoerr.Schema("workspace: validate name", "invalid name %q", name)
	}
	if strings.HasPrefix(strings.ToLower(name), "ws_") {
		return geoerr.Schema("workspace: validate name", "name %q uses the reserved ws_ prefix", name)
	}
	return nil
}

func validateFieldName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case fidColumn, geomColumn:
		return geoerr.Schema("workspace: validate field", "field name %q is reserved", name)
	}
	return nil
}

// quote returns name as a quoted SQL identifier. Names are validated before
// they reach SQL, so no escaping is required.
func quote(name string) string {
	return `"` + name + `"`
}

// SanitizeName folds free text such as a file name into a valid dataset
// name: accents are stripped, other runs of invalid characters become a
// single underscore and a leading digit gets an underscore prefix.
func SanitizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		ok := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
		if ok {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "dataset"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	if strings.HasPrefix(strings.ToLower(out), "ws_") {
		out = "d_" + out
	}
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out
}
