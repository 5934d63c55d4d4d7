package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/gonzalop/ftpwalk"
)

// listingRecord is the JSON shape of one walked directory.
type listingRecord struct {
	URL     string        `json:"url"`
	Dirs    []string      `json:"dirs"`
	Files   []string      `json:"files"`
	Entries []entryRecord `json:"entries,omitempty"`
}

// entryRecord is the JSON shape of one MLSD entry.
type entryRecord struct {
	Name    string            `json:"name"`
	Type    string            `json:"type,omitempty"`
	Size    int64             `json:"size,omitempty"`
	ModTime string            `json:"modtime,omitempty"`
	Facts   map[string]string `json:"facts,omitempty"`
}

func toRecord(l *ftpwalk.Listing) listingRecord {
	rec := listingRecord{URL: l.URL, Dirs: l.Dirs, Files: l.Files}
	for _, e := range l.Entries {
		rec.Entries = append(rec.Entries, toEntryRecord(e))
	}
	return rec
}

func toEntryRecord(e *ftpwalk.Entry) entryRecord {
	rec := entryRecord{
		Name:  e.Name,
		Type:  e.Type,
		Size:  e.Size,
		Facts: e.Facts,
	}
	if !e.ModTime.IsZero() {
		rec.ModTime = e.ModTime.UTC().Format(time.RFC3339)
	}
	return rec
}

// writeListing prints one directory record, either as a JSON object or as
// the URL followed by its indented entries, subdirectories first with a
// trailing slash.
func writeListing(out io.Writer, l *ftpwalk.Listing, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(toRecord(l))
	}
	if _, err := fmt.Fprintln(out, l.URL); err != nil {
		return err
	}
	for _, d := range l.Dirs {
		fmt.Fprintf(out, "  %s/\n", d)
	}
	for _, f := range l.Files {
		fmt.Fprintf(out, "  %s\n", f)
	}
	return nil
}

// formatFacts reassembles an entry's facts in wire order, "key=value;" each.
func formatFacts(e *ftpwalk.Entry) string {
	var b strings.Builder
	for _, fact := range e.FactList {
		b.WriteString(fact.Key)
		b.WriteByte('=')
		b.WriteString(fact.Value)
		b.WriteByte(';')
	}
	return b.String()
}
