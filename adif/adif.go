// Package adif reads and writes contact logs in the ADIF tag-length-value
// format and keeps an append-only log file on disk.
package adif

import (
	"bufio"
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Record is one logged contact. The common fields have their own members;
// anything else is kept in Fields under its lower-case name.
type Record struct {
	Call    string
	Band    string
	Mode    string
	QSODate string // YYYYMMDD
	TimeOn  string // HHMMSS
	Fields  map[string]string
}

// Get returns a field by name, case-insensitive.
func (r *Record) Get(name string) string {
	switch name = strings.ToLower(name); name {
	case "call":
		return r.Call
	case "band":
		return r.Band
	case "mode":
		return r.Mode
	case "qso_date":
		return r.QSODate
	case "time_on":
		return r.TimeOn
	}
	return r.Fields[name]
}

// Set stores a field by name, case-insensitive.
func (r *Record) Set(name, value string) {
	switch name = strings.ToLower(name); name {
	case "call":
		r.Call = value
	case "band":
		r.Band = value
	case "mode":
		r.Mode = value
	case "qso_date":
		r.QSODate = value
	case "time_on":
		r.TimeOn = value
	default:
		if r.Fields == nil {
			r.Fields = make(map[string]string)
		}
		r.Fields[name] = value
	}
}

// Encode serializes the record. Core fields come first in a fixed order,
// then the rest sorted by name.
func (r *Record) Encode() string {
	var b strings.Builder
	writeField(&b, "call", r.Call)
	writeField(&b, "qso_date", r.QSODate)
	writeField(&b, "time_on", r.TimeOn)
	writeField(&b, "band", r.Band)
	writeField(&b, "mode", r.Mode)

	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeField(&b, name, r.Fields[name])
	}
	b.WriteString("<EOR>\n")
	return b.String()
}

func writeField(b *strings.Builder, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.WriteByte('<')
	b.WriteString(strings.ToUpper(name))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte('>')
	b.WriteString(value)
	b.WriteByte(' ')
}

// Generate serializes records, one per line.
func Generate(records []Record) string {
	var b strings.Builder
	for i := range records {
		b.WriteString(records[i].Encode())
	}
	return b.String()
}

// Header returns a minimal ADIF file header.
func Header(programID, version string) string {
	var b strings.Builder
	b.WriteString("ADIF export\n")
	writeField(&b, "adif_ver", "3.1.4")
	writeField(&b, "programid", programID)
	writeField(&b, "programversion", version)
	b.WriteString("<EOH>\n")
	return b.String()
}

// ParseString parses ADIF text.
func ParseString(s string) []Record {
	return parse([]byte(s))
}

// Parse reads all of r and parses it. Read errors end parsing; whatever was
// complete up to that point is returned.
func Parse(r io.Reader) []Record {
	data, _ := io.ReadAll(bufio.NewReader(r))
	return parse(data)
}

// parse walks tags of the form <NAME:LEN[:TYPE]>. A record closes at <EOR>.
// Records containing a malformed tag, and a trailing record with no <EOR>,
// are dropped.
func parse(data []byte) []Record {
	if i := indexFold(data, "<eoh>"); i >= 0 {
		data = data[i+len("<eoh>"):]
	}

	var (
		records []Record
		cur     Record
		empty   = true
		broken  = false
	)
	reset := func() {
		cur = Record{}
		empty = true
		broken = false
	}

	pos := 0
	for {
		lt := bytes.IndexByte(data[pos:], '<')
		if lt < 0 {
			break
		}
		pos += lt
		gt := bytes.IndexByte(data[pos:], '>')
		if gt < 0 {
			break
		}
		tag := string(data[pos+1 : pos+gt])
		pos += gt + 1

		parts := strings.Split(tag, ":")
		name := strings.ToLower(strings.TrimSpace(parts[0]))

		if len(parts) == 1 {
			switch name {
			case "eor":
				if !broken && !empty {
					records = append(records, cur)
				}
				reset()
			case "eoh":
				// stray header terminator, ignore
			default:
				// bare tags ahead of the first field are preamble text
				if !empty {
					broken = true
				}
			}
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 || name == "" || len(parts) > 3 {
			broken = true
			continue
		}
		if pos+n > len(data) {
			// declared length runs past the end: trailing partial record
			break
		}
		value := string(data[pos : pos+n])
		pos += n
		if broken {
			continue
		}
		cur.Set(name, value)
		empty = false
	}
	return records
}

func indexFold(data []byte, needle string) int {
	for i := 0; i+len(needle) <= len(data); i++ {
		if data[i] == needle[0] && bytes.EqualFold(data[i:i+len(needle)], []byte(needle)) {
			return i
		}
	}
	return -1
}
