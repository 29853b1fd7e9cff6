package timeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrNoTimestamp = errors.New("record has neither date nor created_at")

// recordSpace namespaces the ids derived for records that carry none.
var recordSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("relive:record"))

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type fileRecord struct {
	ID        string   `yaml:"id"`
	Date      string   `yaml:"date"`
	CreatedAt string   `yaml:"created_at"`
	Lat       float64  `yaml:"lat"`
	Lng       float64  `yaml:"lng"`
	Caption   string   `yaml:"caption"`
	Images    []string `yaml:"images"`
}

type recordFile struct {
	Records []fileRecord `yaml:"records"`
}

// Load reads a YAML or JSON records file of the form {records: [...]}.
func Load(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a records document. Records without an id get a UUID
// derived from their content, so the same record keeps its id across loads.
func Parse(b []byte) ([]Record, error) {
	var f recordFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	out := make([]Record, 0, len(f.Records))
	seen := map[string]int{}
	for i, fr := range f.Records {
		r := Record{
			ID:      fr.ID,
			Lat:     fr.Lat,
			Lng:     fr.Lng,
			Caption: fr.Caption,
			Images:  fr.Images,
		}
		if r.ID == "" {
			r.ID = derivedID(fr, seen)
		}
		if fr.Date != "" {
			d, err := parseDate(fr.Date)
			if err != nil {
				return nil, fmt.Errorf("record %d date: %w", i, err)
			}
			r.Date = &d
		}
		if fr.CreatedAt != "" {
			c, err := parseDate(fr.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("record %d created_at: %w", i, err)
			}
			r.CreatedAt = c
		}
		if r.Date == nil && r.CreatedAt.IsZero() {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.ID, ErrNoTimestamp)
		}
		out = append(out, r)
	}
	return out, nil
}

// derivedID hashes the record's content. Identical records are told apart
// by how many came before them.
func derivedID(fr fileRecord, seen map[string]int) string {
	key := fmt.Sprintf("%s|%s|%g|%g|%s", fr.Date, fr.CreatedAt, fr.Lat, fr.Lng, fr.Caption)
	seen[key]++
	if n := seen[key]; n > 1 {
		key = fmt.Sprintf("%s#%d", key, n)
	}
	return uuid.NewSHA1(recordSpace, []byte(key)).String()
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Save writes records in the format Load reads.
func Save(path string, records []Record) error {
	f := recordFile{Records: make([]fileRecord, len(records))}
	for i, r := range records {
		fr := fileRecord{
			ID:        r.ID,
			Lat:       r.Lat,
			Lng:       r.Lng,
			Caption:   r.Caption,
			Images:    r.Images,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		}
		if r.Date != nil {
			fr.Date = r.Date.Format(time.RFC3339)
		}
		f.Records[i] = fr
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
