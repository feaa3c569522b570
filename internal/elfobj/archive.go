package elfobj

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	arMagic      = "!<arch>\n"
	arHeaderSize = 60
	elfMagic     = "\x7fELF"
)

// ArchiveMember is one file inside a Unix ar archive.
type ArchiveMember struct {
	Name string
	Data []byte
}

func isArchive(data []byte) bool {
	return bytes.HasPrefix(data, []byte(arMagic))
}

// readArchive splits a GNU or BSD ar archive into its members. The symbol
// index and the long-name table are consumed, not returned.
func readArchive(data []byte) ([]ArchiveMember, error) {
	if !isArchive(data) {
		return nil, errors.New("elfobj: missing archive magic")
	}
	var (
		members   []ArchiveMember
		longNames []byte
	)
	pos := len(arMagic)
	for pos < len(data) {
		if pos+arHeaderSize > len(data) {
			return nil, fmt.Errorf("elfobj: truncated archive header at %d", pos)
		}
		hdr := data[pos : pos+arHeaderSize]
		if string(hdr[58:60]) != "`\n" {
			return nil, fmt.Errorf("elfobj: bad archive member trailer at %d", pos)
		}
		size, err := strconv.ParseUint(strings.TrimSpace(string(hdr[48:58])), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("elfobj: bad archive member size at %d: %w", pos, err)
		}
		start := pos + arHeaderSize
		end := start + int(size)
		if end > len(data) {
			return nil, fmt.Errorf("elfobj: archive member at %d overruns file", pos)
		}
		body := data[start:end]
		name := strings.TrimRight(string(hdr[0:16]), " ")

		switch {
		case name == "/" || name == "/SYM64/" || name == "__.SYMDEF" || name == "__.SYMDEF SORTED":
			// Symbol index.
		case name == "//":
			longNames = body
		case strings.HasPrefix(name, "#1/"):
			n, err := strconv.Atoi(name[3:])
			if err != nil || n > len(body) {
				return nil, fmt.Errorf("elfobj: bad BSD member name %q", name)
			}
			members = append(members, ArchiveMember{
				Name: strings.TrimRight(string(body[:n]), "\x00"),
				Data: body[n:],
			})
		case strings.HasPrefix(name, "/"):
			off, err := strconv.Atoi(name[1:])
			if err != nil || off >= len(longNames) {
				return nil, fmt.Errorf("elfobj: bad long member name %q", name)
			}
			long := longNames[off:]
			if i := bytes.IndexByte(long, '\n'); i >= 0 {
				long = long[:i]
			}
			members = append(members, ArchiveMember{
				Name: strings.TrimSuffix(string(long), "/"),
				Data: body,
			})
		default:
			members = append(members, ArchiveMember{
				Name: strings.TrimSuffix(name, "/"),
				Data: body,
			})
		}

		pos = end
		if pos%2 == 1 {
			pos++
		}
	}
	return members, nil
}
