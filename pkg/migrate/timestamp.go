package migrate

import (
	"fmt"
	"strings"
)

// strftimeLayouts maps strftime directives to Go layout elements.
var strftimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'Z': "MST",
	'z': "-0700",
	'%': "%",
}

// Words a Go layout would read as date elements.
var layoutWords = []string{"Jan", "Mon", "MST", "PM", "pm"}

// ConvertTimestampFormat turns a legacy format template such as
// "({:%Y/%m/%d - %I:%M:%S %p})" into a Go time layout. Literal text that Go
// would read as a layout element is rejected.
func ConvertTimestampFormat(template string) (string, error) {
	var b, lit strings.Builder
	flush := func() error {
		if err := checkLiteral(lit.String()); err != nil {
			return err
		}
		b.WriteString(lit.String())
		lit.Reset()
		return nil
	}

	for i := 0; i < len(template); {
		switch {
		case strings.HasPrefix(template[i:], "{{"):
			lit.WriteByte('{')
			i += 2
		case strings.HasPrefix(template[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case template[i] == '{':
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated replacement field at offset %d", i)
			}
			field := template[i+1 : i+end]
			colon := strings.IndexByte(field, ':')
			if colon < 0 || strings.Trim(field[:colon], "0123456789") != "" {
				return "", fmt.Errorf("replacement field {%s} is not a date format", field)
			}
			if err := flush(); err != nil {
				return "", err
			}
			layout, err := strftimeToLayout(field[colon+1:])
			if err != nil {
				return "", err
			}
			b.WriteString(layout)
			i += end + 1
		default:
			lit.WriteByte(template[i])
			i++
		}
	}
	if err := flush(); err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty timestamp format")
	}
	return b.String(), nil
}

func strftimeToLayout(format string) (string, error) {
	var b, lit strings.Builder
	flush := func() error {
		if err := checkLiteral(lit.String()); err != nil {
			return err
		}
		b.WriteString(lit.String())
		lit.Reset()
		return nil
	}

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			lit.WriteByte(format[i])
			continue
		}
		if i+1 == len(format) {
			return "", fmt.Errorf("dangling %% at end of %q", format)
		}
		i++
		if format[i] == 'f' {
			// Fractional seconds must follow a separator in a Go layout.
			if !strings.HasSuffix(lit.String(), ".") && !strings.HasSuffix(lit.String(), ",") {
				return "", fmt.Errorf("%%f must follow '.' or ',' in %q", format)
			}
			if err := flush(); err != nil {
				return "", err
			}
			b.WriteString("000000")
			continue
		}
		layout, ok := strftimeLayouts[format[i]]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c", format[i])
		}
		if err := flush(); err != nil {
			return "", err
		}
		b.WriteString(layout)
	}
	if err := flush(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func checkLiteral(s string) error {
	if strings.ContainsAny(s, "0123456789") {
		return fmt.Errorf("literal %q contains digits", s)
	}
	for _, w := range layoutWords {
		if strings.Contains(s, w) {
			return fmt.Errorf("literal %q contains layout word %q", s, w)
		}
	}
	return nil
}
