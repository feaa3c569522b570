package elfobj

import (
	"bytes"
	"fmt"
)

// ParseBytes parses a single object or every ELF member of an ar archive.
func ParseBytes(data []byte, path string) ([]*Object, error) {
	if isArchive(data) {
		members, err := readArchive(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		var objs []*Object
		for _, m := range members {
			if !bytes.HasPrefix(m.Data, []byte(elfMagic)) {
				continue
			}
			obj, err := Parse(bytes.NewReader(m.Data), path)
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", m.Name, err)
			}
			obj.Member = m.Name
			objs = append(objs, obj)
		}
		return objs, nil
	}
	if !bytes.HasPrefix(data, []byte(elfMagic)) {
		return nil, fmt.Errorf("%w: %s", ErrNotRelocatable, path)
	}
	obj, err := Parse(bytes.NewReader(data), path)
	if err != nil {
		return nil, err
	}
	return []*Object{obj}, nil
}

// ParseFile maps path and parses it with ParseBytes. Section contents are
// copied out, so nothing refers to the mapping once ParseFile returns.
func ParseFile(path string) ([]*Object, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("elfobj: %w", err)
	}
	defer release()
	return ParseBytes(data, path)
}
