package jobs

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/luantaraschi/petichat-definitive/models"
)

// maxDatasetSize bounds a downloaded dataset
const maxDatasetSize = 64 << 20

// Record is one decision as published in a dataset. Field names follow
// the tribunals' open-data exports.
type Record struct {
	Tribunal       string `json:"tribunal"`
	Numero         string `json:"numero"`
	DataJulgamento string `json:"dataJulgamento"`
	Relator        string `json:"relator"`
	OrgaoJulgador  string `json:"orgaoJulgador"`
	Ementa         string `json:"ementa"`
	InteiroTeor    string `json:"inteiroTeor"`
	Fonte          string `json:"fonte"`
	Link           string `json:"link"`
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", time.RFC3339}

// Jurisprudence converts the record, falling back to tribunal when the
// record omits it. Records without number or summary are invalid.
func (r Record) Jurisprudence(tribunal, source string) (*models.Jurisprudence, error) {
	j := &models.Jurisprudence{
		Tribunal:      strings.ToUpper(strings.TrimSpace(firstNonEmpty(r.Tribunal, tribunal))),
		ProcessNumber: strings.TrimSpace(r.Numero),
		Summary:       strings.TrimSpace(r.Ementa),
		Source:        firstNonEmpty(strings.TrimSpace(r.Fonte), source),
		Rapporteur:    optional(r.Relator),
		JudgingBody:   optional(r.OrgaoJulgador),
		FullText:      optional(r.InteiroTeor),
		ExternalLink:  optional(r.Link),
	}
	switch {
	case j.Tribunal == "":
		return nil, errors.New("record without tribunal")
	case j.ProcessNumber == "":
		return nil, errors.New("record without process number")
	case j.Summary == "":
		return nil, fmt.Errorf("record %s without summary", j.ProcessNumber)
	}
	if d := strings.TrimSpace(r.DataJulgamento); d != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				j.DecisionDate = &t
				break
			}
		}
	}
	return j, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Fetcher loads raw dataset bytes from a URL or a local path
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// HTTPFetcher downloads http(s) locations and reads anything else from disk
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return os.ReadFile(strings.TrimPrefix(location, "file://"))
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download dataset: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDatasetSize))
}

// ParseDataset decodes records in the given format. XLSX reads sheet, or
// the first sheet when empty.
func ParseDataset(raw []byte, format DatasetFormat, sheet string) ([]Record, error) {
	switch format {
	case FormatJSON, "":
		return parseJSON(raw)
	case FormatCSV:
		r := csv.NewReader(bytes.NewReader(raw))
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv dataset: %w", err)
		}
		return recordsFromRows(rows), nil
	case FormatXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("open xlsx dataset: %w", err)
		}
		defer f.Close()
		if sheet == "" {
			sheet = f.GetSheetName(0)
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read xlsx sheet %q: %w", sheet, err)
		}
		return recordsFromRows(rows), nil
	}
	return nil, fmt.Errorf("unsupported dataset format %q", format)
}

// parseJSON accepts a bare array or an object with a "data" array
func parseJSON(raw []byte) ([]Record, error) {
	raw = bytes.TrimSpace(raw)
	var records []Record
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Data []Record `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("parse json dataset: %w", err)
		}
		return wrapped.Data, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse json dataset: %w", err)
	}
	return records, nil
}

// recordsFromRows maps tabular rows using the header row
func recordsFromRows(rows [][]string) []Record {
	if len(rows) < 2 {
		return nil
	}
	index := make(map[string]int)
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cell := func(row []string, name string) string {
		i, ok := index[strings.ToLower(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	out := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(strings.TrimSpace(strings.Join(row, ""))) == 0 {
			continue
		}
		out = append(out, Record{
			Tribunal:       cell(row, "tribunal"),
			Numero:         cell(row, "numero"),
			DataJulgamento: cell(row, "dataJulgamento"),
			Relator:        cell(row, "relator"),
			OrgaoJulgador:  cell(row, "orgaoJulgador"),
			Ementa:         cell(row, "ementa"),
			InteiroTeor:    cell(row, "inteiroTeor"),
			Fonte:          cell(row, "fonte"),
			Link:           cell(row, "link"),
		})
	}
	return out
}
