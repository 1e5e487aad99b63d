package wire

import "strings"

// Encode serializes m back into a wire line, including the trailing CRLF.
//
// Only the final parameter group may be written in trailing form. A group
// is written as trailing when it has exactly one element and that element
// contains a space (so it would otherwise be unparseable), per section 4.1.
// Multi-element groups are always joined with commas, even if they are the
// last group.
func (m Message) Encode() string {
	var b strings.Builder

	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}

	b.WriteString(m.Command)

	for i, group := range m.Params {
		b.WriteByte(' ')

		isLast := i == len(m.Params)-1
		if isLast && len(group) == 1 && strings.Contains(group[0], " ") {
			b.WriteByte(':')
			b.WriteString(group[0])
			continue
		}

		b.WriteString(strings.Join(group, ","))
	}

	b.WriteString("\r\n")

	return b.String()
}
