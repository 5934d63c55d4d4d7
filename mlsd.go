package ftpwalk

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fact is a single keyword=value pair from an MLSD listing line.
type Fact struct {
	// Key is the fact keyword, lower-cased
	Key string

	// Value is the fact value, verbatim
	Value string
}

// Entry is one machine-readable directory entry returned by MLSD.
type Entry struct {
	// Name is the entry's name as sent by the server
	Name string

	// Type is the lower-cased "type" fact: "file", "dir", "cdir", "pdir",
	// or "" when the server sent no type
	Type string

	// Size is the parsed "size" fact, 0 when absent
	Size int64

	// ModTime is the parsed "modify" fact, zero when absent
	ModTime time.Time

	// Facts maps lower-cased fact keywords to values; duplicates keep the
	// last value
	Facts map[string]string

	// FactList holds every fact in wire order, duplicates included
	FactList []Fact
}

// IsDir reports whether the entry describes a directory, counting the
// cdir and pdir entries MLSD uses for "." and "..".
func (e *Entry) IsDir() bool {
	switch e.Type {
	case "dir", "cdir", "pdir":
		return true
	}
	return false
}

// parseMLSDLine parses one line of MLSD output. The facts run up to the
// first space, each terminated by a semicolon, and the pathname is
// everything after that space:
//
//	type=dir;modify=20201213202400; photos
func parseMLSDLine(line string) (*Entry, error) {
	facts, name, ok := strings.Cut(line, " ")
	if !ok {
		return nil, &ParseError{Line: line, Reason: "missing space before pathname"}
	}
	if name == "" {
		return nil, &ParseError{Line: line, Reason: "empty pathname"}
	}

	entry := &Entry{
		Name:  name,
		Facts: make(map[string]string),
	}

	for pair := range strings.SplitSeq(facts, ";") {
		if pair == "" {
			// the fact list ends with a semicolon
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("fact %q is not keyword=value", pair)}
		}
		key = strings.ToLower(key)
		entry.Facts[key] = value
		entry.FactList = append(entry.FactList, Fact{Key: key, Value: value})
	}

	entry.Type = strings.ToLower(entry.Facts["type"])
	if v, ok := entry.Facts["size"]; ok {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			entry.Size = size
		}
	}
	if v, ok := entry.Facts["modify"]; ok {
		// strip fractional seconds: 20201213202400.000
		v, _, _ = strings.Cut(v, ".")
		if t, err := time.ParseInLocation("20060102150405", v, time.UTC); err == nil {
			entry.ModTime = t
		}
	}
	return entry, nil
}

// parseMLSDLines parses every line of an MLSD listing, failing on the
// first malformed one.
func parseMLSDLines(lines []string) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(lines))
	for _, line := range lines {
		entry, err := parseMLSDLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// mlsdNames classifies MLSD entries into subdirectory and file names in
// listing order. The cdir and pdir entries are the directory itself and
// its parent, so they are left out, as is any entry named "." or "..".
func mlsdNames(entries []*Entry) (dirs, files []string) {
	for _, e := range entries {
		switch e.Type {
		case "dir":
			if e.Name != "." && e.Name != ".." {
				dirs = append(dirs, e.Name)
			}
		case "file":
			files = append(files, e.Name)
		}
	}
	return dirs, files
}
