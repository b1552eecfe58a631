// Package convert turns header-mapped CSV files into detection payloads.
// Conversion failures carry the file path and 1-based data row so a bad
// spreadsheet line is directly addressable
package convert

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"detrelay/internal/payload"
	perr "detrelay/internal/platform/errors"
	"detrelay/internal/platform/logger"
)

const (
	defaultPattern  = "*.csv"
	defaultEncoding = "utf-8"
)

// Well-known column headers
const (
	colEntityID    = "Entity ID"
	colEntity      = "Entity"
	colSource      = "Source"
	colSourceType  = "Source Type"
	colDetectors   = "Detectors"
	colDescription = "Description"
	colTime        = "Detection Time"
	colSubType     = "Sub Type"
	colDetectionID = "Detection ID"
	colMalware     = "Malware"
	colMitreCodes  = "Mitre Codes"
	colEventSource = "Event Source"
	colEventID     = "Event ID"
	colEventName   = "Event Name"
)

// Options configures a Converter
type Options struct {
	// InputDir is searched by Run; defaults to the working directory
	InputDir string

	// OutputDir receives generated JSON files; defaults to InputDir
	OutputDir string

	// Pattern is the glob matched against file names under InputDir
	Pattern string

	// Encoding is the IANA name of the source character set
	Encoding string
}

// Converter reads CSV files and produces validated payloads
type Converter struct {
	opts Options
	log  logger.Logger
}

// New creates a Converter with defaults filled in
func New(o Options) *Converter {
	if o.InputDir == "" {
		o.InputDir = "."
	}
	if o.OutputDir == "" {
		o.OutputDir = o.InputDir
	}
	if o.Pattern == "" {
		o.Pattern = defaultPattern
	}
	if o.Encoding == "" {
		o.Encoding = defaultEncoding
	}
	return &Converter{opts: o, log: *logger.Named("convert")}
}

// FindFiles returns the sorted CSV paths matching the configured pattern
func (c *Converter) FindFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.opts.InputDir, c.opts.Pattern))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeFile, "bad csv pattern %q", c.opts.Pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

// Payload reads one CSV file and builds a validated payload from its rows
func (c *Converter) Payload(csvPath string) (*payload.Payload, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "failed to read csv file"), csvPath)
	}
	defer func() { _ = f.Close() }()

	src, err := c.decode(f)
	if err != nil {
		return nil, perr.WithPath(err, csvPath)
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, perr.WithPath(perr.Conversionf("csv file has no header row"), csvPath)
		}
		return nil, perr.WithPath(perr.Wrapf(err, perr.ErrorCodeConversion, "failed to read csv header"), csvPath)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	var data []payload.Entry
	for rowNum := 1; ; rowNum++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, perr.WithRow(
				perr.WithPath(perr.Wrapf(err, perr.ErrorCodeConversion, "malformed csv row"), csvPath), rowNum)
		}
		row := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		entry, err := rowToEntry(row)
		if err != nil {
			return nil, perr.WithRow(perr.WithPath(err, csvPath), rowNum)
		}
		data = append(data, entry)
	}

	p := &payload.Payload{Data: data}
	if err := payload.Validate(p); err != nil {
		return nil, perr.WithPath(err, csvPath)
	}
	return p, nil
}

// ConvertFile converts one CSV file and writes the payload as JSON. An empty
// jsonPath places the output in OutputDir next to the source name
func (c *Converter) ConvertFile(csvPath, jsonPath string) (string, error) {
	if jsonPath == "" {
		base := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath)) + ".json"
		jsonPath = filepath.Join(c.opts.OutputDir, base)
	}

	p, err := c.Payload(csvPath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		return "", perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "failed to create output directory"), jsonPath)
	}
	buf, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeJSON, "payload encode failed")
	}
	if err := os.WriteFile(jsonPath, append(buf, '\n'), 0o644); err != nil {
		return "", perr.WithPath(perr.Wrapf(err, perr.ErrorCodeFile, "failed to write json file"), jsonPath)
	}

	c.log.Info().
		Str("csv", filepath.Base(csvPath)).
		Str("json", filepath.Base(jsonPath)).
		Int("entries", len(p.Data)).
		Msg("converted csv file")
	return jsonPath, nil
}

// Run batch-converts every matching CSV under InputDir. Per-file failures
// are logged and skipped; the returned slice holds the files that converted
func (c *Converter) Run() ([]string, error) {
	files, err := c.FindFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		c.log.Warn().
			Str("pattern", c.opts.Pattern).
			Str("dir", c.opts.InputDir).
			Msg("no csv files found")
		return nil, nil
	}

	var out []string
	for _, f := range files {
		jsonPath, err := c.ConvertFile(f, "")
		if err != nil {
			c.log.Error().Err(err).Str("file", f).Msg("conversion failed")
			continue
		}
		out = append(out, jsonPath)
	}
	return out, nil
}

// decode wraps r with the configured character set decoder
func (c *Converter) decode(r io.Reader) (io.Reader, error) {
	name := strings.ToLower(c.opts.Encoding)
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}
	enc, err := ianaindex.IANA.Encoding(c.opts.Encoding)
	if err != nil || enc == nil {
		return nil, perr.Conversionf("unknown csv encoding %q", c.opts.Encoding)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// rowToEntry maps one CSV row to a payload entry. The Entity ID column may
// carry "type:value"; otherwise the value comes from the Entity column and
// the type is inferred from the Source column
func rowToEntry(row func(string) string) (payload.Entry, error) {
	var iocType, iocValue string
	entityID := row(colEntityID)
	if strings.Contains(entityID, ":") {
		parts := strings.SplitN(entityID, ":", 2)
		iocType, iocValue = parts[0], parts[1]
	} else {
		iocValue = row(colEntity)
		if iocValue == "" {
			iocValue = entityID
		}
		iocType = inferType(row(colSource))
	}

	if iocType == "" {
		return payload.Entry{}, perr.Conversionf("ioc type is required but could not be determined")
	}
	if iocValue == "" {
		return payload.Entry{}, perr.Conversionf("ioc value is required but missing")
	}
	detectorType := row(colDetectors)
	if detectorType == "" {
		return payload.Entry{}, perr.Conversionf("detection type (%q column) is required but missing", colDetectors)
	}

	entry := payload.Entry{
		IoC: payload.IoC{
			Type:       iocType,
			Value:      iocValue,
			SourceType: row(colSourceType),
		},
		Detection: payload.Detection{
			Type:    detectorType,
			Name:    row(colDescription),
			SubType: row(colSubType),
			ID:      row(colDetectionID),
		},
		Timestamp:  row(colTime),
		Malwares:   splitList(row(colMalware)),
		MitreCodes: splitList(row(colMitreCodes)),
	}

	if t, id, name := row(colEventSource), row(colEventID), row(colEventName); t != "" || id != "" || name != "" {
		entry.Incident = &payload.Incident{Type: t, ID: id, Name: name}
	}
	return entry, nil
}

// inferType guesses the IoC kind from the Source column contents
func inferType(source string) string {
	s := strings.ToLower(source)
	switch {
	case strings.Contains(s, "ip"):
		return payload.IoCTypeIP
	case strings.Contains(s, "domain"):
		return payload.IoCTypeDomain
	case strings.Contains(s, "hash"):
		return payload.IoCTypeHash
	case strings.Contains(s, "url"):
		return payload.IoCTypeURL
	case strings.Contains(s, "vuln"):
		return payload.IoCTypeVulnerability
	default:
		return ""
	}
}

// splitList parses a comma-separated cell into trimmed non-empty items
func splitList(cell string) []string {
	if cell == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
