// Package ingest loads detector readings from JSON files into the stores.
package ingest

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/crowdcount/internal/model"
)

// Record is one reading plus the density samples captured with it.
type Record struct {
	Observation model.Observation
	Density     []model.DensitySample
}

type densityField struct {
	Density []model.DensitySample `json:"density"`
}

// CharsetReader wraps r so it yields UTF-8. An empty charset or any UTF-8
// label returns r unchanged.
func CharsetReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

// Decode reads either a JSON array of readings or a stream of JSON values
// (one per line).
func Decode(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read input")
	}

	dec := json.NewDecoder(br)
	var raws []json.RawMessage
	if first == '[' {
		if err := dec.Decode(&raws); err != nil {
			return nil, eris.Wrap(err, "ingest: decode json array")
		}
	} else {
		for n := 1; ; n++ {
			var raw json.RawMessage
			err := dec.Decode(&raw)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: decode record %d", n)
			}
			raws = append(raws, raw)
		}
	}

	out := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: record %d", i+1)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec.Observation); err != nil {
		return Record{}, err
	}
	var d densityField
	if err := json.Unmarshal(raw, &d); err != nil {
		return Record{}, eris.Wrap(err, "decode density")
	}
	rec.Density = d.Density
	return rec, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !isSpace(b) {
			return b, br.UnreadByte()
		}
	}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

// NormalizeKey returns the NFC form of a camera, position or area key.
func NormalizeKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeObservation(o *model.Observation) {
	o.Camera = NormalizeKey(o.Camera)
	o.Position = NormalizeKey(o.Position)
	if len(o.Counts) == 0 {
		return
	}
	counts := make(map[string]float64, len(o.Counts))
	for k, v := range o.Counts {
		counts[NormalizeKey(k)] += v
	}
	o.Counts = counts
}
