package ftpwalk

// Listing is the record produced for each directory visited by a traversal.
type Listing struct {
	// URL identifies the directory, in canonical form without a trailing slash
	URL string

	// Dirs holds the names of immediate subdirectories, in server listing
	// order, excluding "." and ".."
	Dirs []string

	// Files holds the names of plain files, in server listing order
	Files []string

	// Entries holds the machine-readable entries when the listing was
	// fetched with MLSD, nil when it came from LIST. It includes every
	// entry the server reported, cdir/pdir included; Dirs and Files hold
	// the classified names either way.
	Entries []*Entry
}

// listNames classifies raw LIST lines into subdirectory and file names.
//
// A line starting with 'd' is a directory and one starting with '-' is a
// plain file; any other leading character (symlinks, "total" summary lines,
// block devices) is ignored. The name is the ninth field when splitting
// into at most nine fields, so names may contain spaces. "." and ".." are
// dropped from the directory names.
func listNames(lines []string) (dirs, files []string, err error) {
	for _, line := range lines {
		if line == "" {
			continue
		}
		switch line[0] {
		case 'd':
			name, ok := listEntryName(line)
			if !ok {
				return nil, nil, &ParseError{Line: line, Reason: "expected 9 whitespace-separated fields"}
			}
			if name != "." && name != ".." {
				dirs = append(dirs, name)
			}
		case '-':
			name, ok := listEntryName(line)
			if !ok {
				return nil, nil, &ParseError{Line: line, Reason: "expected 9 whitespace-separated fields"}
			}
			files = append(files, name)
		}
	}
	return dirs, files, nil
}

// listEntryName extracts the name field from a Unix-style LIST line:
// the remainder after eight whitespace-separated metadata fields.
func listEntryName(line string) (string, bool) {
	fields := splitFieldsMax(line, 9)
	if len(fields) < 9 {
		return "", false
	}
	return fields[8], true
}

// splitFieldsMax splits line on runs of spaces and tabs into at most max
// fields. The final field keeps any embedded whitespace verbatim.
func splitFieldsMax(line string, max int) []string {
	fields := make([]string, 0, max)
	i := 0

	for len(fields) < max-1 {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i == len(line) {
			return fields
		}
		start := i
		for i < len(line) && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		fields = append(fields, line[start:i])
	}

	// Remainder is the final field
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	if i < len(line) {
		fields = append(fields, line[i:])
	}
	return fields
}
