package mascot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineSize bounds a single DAT line (Ions1 lines of large spectra are long).
const maxLineSize = 16 * 1024 * 1024

// section maps the keys of one MIME part to their values
type section map[string]string

// sectionStore gives access to the MIME parts of a DAT file by name
type sectionStore interface {
	section(name string) (section, bool, error)
}

// memoryStore holds every section of a file parsed in memory
type memoryStore map[string]section

func (m memoryStore) section(name string) (section, bool, error) {
	s, ok := m[name]
	return s, ok, nil
}

// span is the byte range of a section's content
type span struct {
	start, end int64
}

// indexStore reads sections lazily from their recorded offsets
type indexStore struct {
	file  *os.File
	spans map[string]span
}

func (ix *indexStore) section(name string) (section, bool, error) {
	sp, ok := ix.spans[name]
	if !ok {
		return nil, false, nil
	}
	s := make(section)
	err := scanKeyValues(io.NewSectionReader(ix.file, sp.start, sp.end-sp.start), func(k, v string) {
		s[k] = v
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read section %s: %w", name, err)
	}
	return s, true, nil
}

// partVisitor receives the structure of a DAT file while it is scanned
type partVisitor struct {
	// begin is called with the section name and the offset of its content
	begin func(name string, offset int64)
	// line is called for every content line of the current section
	line func(name, line string)
	// end is called with the offset just past the section content
	end func(name string, offset int64)
}

// scanParts walks the MIME multipart layout of a DAT file.
func scanParts(r io.Reader, v partVisitor) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var offset, lineStart int64
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		adv, tok, err := bufio.ScanLines(data, atEOF)
		if adv > 0 {
			lineStart = offset
			offset += int64(adv)
		}
		return adv, tok, err
	})

	const (
		preamble = iota
		partHeader
		content
	)
	state := preamble
	boundary := ""
	name := ""

	isBoundary := func(line string) bool {
		if boundary == "" {
			return false
		}
		return line == "--"+boundary || line == "--"+boundary+"--"
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " ")

		if state == preamble && boundary == "" {
			if i := strings.Index(line, "boundary="); i >= 0 {
				boundary = strings.Trim(line[i+len("boundary="):], `"`)
				continue
			}
			if strings.HasPrefix(line, "--") && len(line) > 2 {
				boundary = line[2:]
			}
		}

		if isBoundary(line) {
			if state == content && v.end != nil {
				v.end(name, lineStart)
			}
			state = partHeader
			name = ""
			continue
		}

		switch state {
		case partHeader:
			if line == "" {
				state = content
				if v.begin != nil {
					v.begin(name, offset)
				}
				continue
			}
			if i := strings.Index(line, `name="`); i >= 0 {
				rest := line[i+len(`name="`):]
				if j := strings.IndexByte(rest, '"'); j >= 0 {
					name = rest[:j]
				}
			}
		case content:
			if v.line != nil {
				v.line(name, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if state == content && v.end != nil {
		v.end(name, offset)
	}
	return nil
}

// scanKeyValues parses KEY=VALUE lines
func scanKeyValues(r io.Reader, fn func(key, value string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if k, val, ok := splitKeyValue(scanner.Text()); ok {
			fn(k, val)
		}
	}
	return scanner.Err()
}

func splitKeyValue(line string) (string, string, bool) {
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return "", "", false
	}
	return line[:i], strings.TrimRight(line[i+1:], "\r"), true
}

// loadMemory parses every section of the file into memory
func loadMemory(r io.Reader) (memoryStore, error) {
	store := make(memoryStore)
	err := scanParts(r, partVisitor{
		begin: func(name string, _ int64) {
			if _, ok := store[name]; !ok {
				store[name] = make(section)
			}
		},
		line: func(name, line string) {
			if k, v, ok := splitKeyValue(line); ok {
				store[name][k] = v
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildIndex records the content offsets of every section
func buildIndex(f *os.File) (*indexStore, error) {
	ix := &indexStore{file: f, spans: make(map[string]span)}
	var current string
	var start int64
	err := scanParts(f, partVisitor{
		begin: func(name string, offset int64) {
			current, start = name, offset
		},
		end: func(name string, offset int64) {
			if name == current {
				ix.spans[name] = span{start: start, end: offset}
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}
