package link

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tinyrange/armaot/internal/elfobj"
)

// FindExternSymbol locates the section defining name. Managed exports are
// never external. Otherwise the lookup tries the section cache, the file the
// symbol was last seen in, the configured files and then every file of the
// configured directories. The first match wins and is cached.
//
// A nil section with a nil error means the symbol was not found.
func (s *Session) FindExternSymbol(name string) (*elfobj.Section, error) {
	if s.cfg.Managed.IsManaged(name) {
		return nil, nil
	}
	if sec, ok := s.sections[name]; ok {
		return sec, nil
	}

	var found *elfobj.Section
	if hint, ok := s.fileHints[name]; ok {
		sec, err := s.parseFileForSymbol(name, hint)
		if err != nil {
			return nil, err
		}
		if sec == nil {
			delete(s.fileHints, name)
		}
		found = sec
	}

	if found == nil {
		for _, file := range s.cfg.Files {
			if s.scanned[absPath(file)] {
				continue
			}
			sec, err := s.parseFileForSymbol(name, file)
			if err != nil {
				return nil, err
			}
			if sec != nil {
				found = sec
				break
			}
		}
	}

	if found == nil {
	dirs:
		for _, dir := range s.cfg.Directories {
			entries, err := os.ReadDir(dir)
			if err != nil {
				s.logger.Debug("skipping import directory", "dir", dir, "error", err)
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				file := filepath.Join(dir, entry.Name())
				if s.scanned[absPath(file)] {
					continue
				}
				sec, err := s.parseFileForSymbol(name, file)
				if err != nil {
					return nil, err
				}
				if sec != nil {
					found = sec
					break dirs
				}
			}
		}
	}

	if found != nil {
		s.sections[name] = found
		s.advance(name, StateLocated)
	}
	return found, nil
}

// parseFileForSymbol loads path, records every name it defines as a hint and
// returns the first section defining name.
func (s *Session) parseFileForSymbol(name, path string) (*elfobj.Section, error) {
	if sec, ok := s.sections[name]; ok {
		return sec, nil
	}
	objs, err := s.objectsFor(path)
	if err != nil {
		return nil, err
	}

	var found *elfobj.Section
	for _, obj := range objs {
		for _, sec := range obj.Sections {
			if _, ok := s.fileHints[sec.Name]; !ok {
				s.fileHints[sec.Name] = path
			}
			for alias := range sec.Aliases {
				if _, ok := s.fileHints[alias]; !ok {
					s.fileHints[alias] = path
				}
			}
			if found == nil && sec.Defines(name) {
				found = sec
			}
		}
	}
	return found, nil
}

// objectsFor parses path once. Files that are not ARM relocatable objects,
// or that do not exist, are remembered as empty.
func (s *Session) objectsFor(path string) ([]*elfobj.Object, error) {
	key := absPath(path)
	if objs, ok := s.objects[key]; ok {
		return objs, nil
	}
	if s.cfg.OnScan != nil {
		s.cfg.OnScan(path)
	}
	s.scanned[key] = true
	objs, err := elfobj.ParseFile(path)
	switch {
	case err == nil:
		s.logger.Debug("parsed object file", "file", path, "objects", len(objs))
	case errors.Is(err, elfobj.ErrNotRelocatable):
		s.logger.Debug("skipping non-object file", "file", path)
		objs, err = nil, nil
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("import file does not exist", "file", path)
		objs, err = nil, nil
	default:
		return nil, err
	}
	s.objects[key] = objs
	return objs, nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
