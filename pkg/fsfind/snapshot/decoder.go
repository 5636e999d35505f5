// Package snapshot reads filesystem metadata snapshots.
//
// A snapshot is a JSON document of the form
//
//	{"files": [{"path": "/a.txt", "size": 100, ...}, ...], "metadata": {...}}
//
// The document is decoded as a stream so snapshots of any size can be
// ingested in bounded memory.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// Record is one validated file or directory entry from a snapshot.
type Record struct {
	Path    string
	Name    string
	Inode   uint64
	Size    int64
	ModTime time.Time
	Mode    uint32
	IsDir   bool
}

// rawRecord mirrors the wire shape. Pointer fields distinguish absent
// values from zero values.
type rawRecord struct {
	Path        string          `json:"path"`
	Name        string          `json:"name"`
	Inode       uint64          `json:"inode"`
	Size        int64           `json:"size"`
	MTime       json.RawMessage `json:"mtime"`
	Mode        uint32          `json:"mode"`
	IsDir       *bool           `json:"is_dir"`
	IsDirectory *bool           `json:"is_directory"`
}

// RecordError describes a single malformed record. It is not fatal: the
// decoder is positioned on the next record.
type RecordError struct {
	// Index is the zero-based position of the record in the files array.
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Errors describing malformed records.
var (
	ErrEmptyPath = errors.New("missing path")
	ErrNotObject = errors.New("record is not an object")
)

type decodeState int

const (
	stateStart decodeState = iota
	stateTopLevel
	stateFiles
	stateDone
)

// Decoder reads records from a snapshot stream.
type Decoder struct {
	dec   *json.Decoder
	state decodeState

	sawFiles bool
	index    int
	metadata map[string]string

	// OnFilesStart, if set, is called once when the files array opens,
	// before the first record is returned. An error aborts decoding.
	OnFilesStart func() error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Decoder{dec: dec, metadata: make(map[string]string)}
}

// Metadata returns the snapshot's metadata mapping with values rendered as
// strings. It is complete once Next has returned io.EOF.
func (d *Decoder) Metadata() map[string]string {
	return d.metadata
}

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrFormat, fmt.Sprintf(format, args...))
}

// Next returns the next valid record. It returns io.EOF after the document
// ends, a *RecordError for a malformed record that can be skipped, and an
// error wrapping types.ErrFormat when the document itself is malformed.
func (d *Decoder) Next() (*Record, error) {
	for {
		switch d.state {
		case stateStart:
			if err := d.expectDelim('{'); err != nil {
				return nil, err
			}
			d.state = stateTopLevel

		case stateTopLevel:
			if !d.dec.More() {
				if err := d.expectDelim('}'); err != nil {
					return nil, err
				}
				d.state = stateDone
				continue
			}
			if err := d.topLevelKey(); err != nil {
				return nil, err
			}

		case stateFiles:
			if !d.dec.More() {
				if err := d.expectDelim(']'); err != nil {
					return nil, err
				}
				d.state = stateTopLevel
				continue
			}
			return d.record()

		case stateDone:
			if !d.sawFiles {
				return nil, formatErr("snapshot has no files array")
			}
			return nil, io.EOF
		}
	}
}

func (d *Decoder) token() (json.Token, error) {
	tok, err := d.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, formatErr("unexpected end of snapshot")
		}
		return nil, formatErr("%v", err)
	}
	return tok, nil
}

func (d *Decoder) expectDelim(want json.Delim) error {
	tok, err := d.token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return formatErr("expected %q, found %v", want, tok)
	}
	return nil
}

func (d *Decoder) topLevelKey() error {
	tok, err := d.token()
	if err != nil {
		return err
	}
	key, ok := tok.(string)
	if !ok {
		return formatErr("expected object key, found %v", tok)
	}

	switch key {
	case "files":
		if d.sawFiles {
			return formatErr("duplicate files array")
		}
		tok, err := d.token()
		if err != nil {
			return err
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return formatErr("files must be an array, found %v", tok)
		}
		d.sawFiles = true
		if d.OnFilesStart != nil {
			if err := d.OnFilesStart(); err != nil {
				return err
			}
		}
		d.state = stateFiles

	case "metadata":
		var raw map[string]any
		if err := d.dec.Decode(&raw); err != nil {
			return formatErr("metadata: %v", err)
		}
		for k, v := range raw {
			d.metadata[k] = stringify(v)
		}

	default:
		var skip json.RawMessage
		if err := d.dec.Decode(&skip); err != nil {
			return formatErr("%s: %v", key, err)
		}
	}
	return nil
}

func (d *Decoder) record() (*Record, error) {
	idx := d.index
	d.index++

	var raw json.RawMessage
	if err := d.dec.Decode(&raw); err != nil {
		// A syntax error leaves the stream unusable.
		return nil, formatErr("record %d: %v", idx, err)
	}

	if len(raw) == 0 || raw[0] != '{' {
		return nil, &RecordError{Index: idx, Err: ErrNotObject}
	}

	var rr rawRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, &RecordError{Index: idx, Err: err}
	}

	rec, err := rr.validate()
	if err != nil {
		return nil, &RecordError{Index: idx, Err: err}
	}
	return rec, nil
}

func (rr *rawRecord) validate() (*Record, error) {
	if rr.Path == "" {
		return nil, ErrEmptyPath
	}
	if rr.Size < 0 {
		return nil, fmt.Errorf("negative size %d", rr.Size)
	}

	rec := &Record{
		Path:  filepath.Clean(rr.Path),
		Name:  rr.Name,
		Inode: rr.Inode,
		Size:  rr.Size,
		Mode:  rr.Mode,
	}
	if rec.Name == "" {
		rec.Name = filepath.Base(rec.Path)
	}
	switch {
	case rr.IsDir != nil:
		rec.IsDir = *rr.IsDir
	case rr.IsDirectory != nil:
		rec.IsDir = *rr.IsDirectory
	}

	mtime, err := parseMTime(rr.MTime)
	if err != nil {
		return nil, err
	}
	rec.ModTime = mtime
	return rec, nil
}

// parseMTime accepts an ISO-8601 string, unix seconds, or null/absent.
func parseMTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		return types.ParseTime(s)
	}
	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("mtime: %w", err)
	}
	return time.Unix(int64(secs), 0), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
