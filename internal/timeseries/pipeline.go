package timeseries

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// Config parameterizes the regularize → combine → smooth pipeline.
type Config struct {
	GroupBy    model.GroupBy `yaml:"group_by" mapstructure:"group_by"`
	FillCap    int           `yaml:"fill_cap" mapstructure:"fill_cap"`
	Span       float64       `yaml:"span" mapstructure:"span"`
	Convention Convention    `yaml:"convention" mapstructure:"convention"`
	DayOffset  time.Duration `yaml:"day_offset" mapstructure:"day_offset"`
}

// Preset names.
const (
	PresetPosition = "position"
	PresetCamera   = "camera"
	PresetVenue    = "venue"
	PresetLegacy   = "legacy"
)

var presets = map[string]Config{
	PresetPosition: {GroupBy: model.GroupByPosition, FillCap: 10, Span: DefaultSpan, Convention: AdjustFalse},
	PresetCamera:   {GroupBy: model.GroupByCamera, FillCap: 10, Span: DefaultSpan, Convention: AdjustFalse},
	PresetVenue:    {GroupBy: model.GroupByCamera, FillCap: 10, Span: 3, Convention: AdjustFalse, DayOffset: 2 * time.Hour},
	PresetLegacy:   {GroupBy: model.GroupByCamera, FillCap: 0, Span: DefaultSpan, Convention: AdjustTrue},
}

// Preset returns a named configuration.
func Preset(name string) (Config, error) {
	cfg, ok := presets[name]
	if !ok {
		return Config{}, eris.Errorf("timeseries: unknown preset %q", name)
	}
	return cfg, nil
}

// PresetNames lists the known presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	switch c.GroupBy {
	case model.GroupByCamera, model.GroupByPosition:
	default:
		return eris.Errorf("timeseries: unknown group_by %q", c.GroupBy)
	}
	if c.FillCap < 0 {
		return eris.New("timeseries: fill_cap must be >= 0")
	}
	if c.Span < 1 {
		return eris.New("timeseries: span must be >= 1")
	}
	if _, err := ParseConvention(string(c.Convention)); err != nil {
		return err
	}
	return nil
}

// Pipeline runs the temporal aggregation for one request.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline. Zero-valued fields fall back to the position preset.
func New(cfg Config) *Pipeline {
	def := presets[PresetPosition]
	if cfg.GroupBy == "" {
		cfg.GroupBy = def.GroupBy
	}
	if cfg.Span == 0 {
		cfg.Span = def.Span
	}
	if cfg.Convention == "" {
		cfg.Convention = def.Convention
	}
	return &Pipeline{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Window returns the observation window for a date under this pipeline's day offset.
func (p *Pipeline) Window(date time.Time, cutoff *time.Duration) Window {
	return NewWindow(date, cutoff, p.cfg.DayOffset)
}

// Run produces the smoothed per-area series for the requested areas. Areas
// with no contributing source are left out of the result.
func (p *Pipeline) Run(obs []model.Observation, areas []string, resolver AreaResolver, w Window) (*model.AreaSeries, error) {
	reg := Regularizer{GroupBy: p.cfg.GroupBy, FillCap: p.cfg.FillCap}
	r, err := reg.Regularize(obs, areas, resolver, w)
	if err != nil {
		return nil, err
	}

	combined := CombineAreas(r)

	series := &model.AreaSeries{}
	smoothed := make(map[string][]float64, len(combined))
	for _, area := range areas {
		values, ok := combined[area]
		if !ok {
			continue
		}
		if _, dup := smoothed[area]; dup {
			continue
		}
		series.Areas = append(series.Areas, area)
		smoothed[area] = Smooth(values, p.cfg.Span, p.cfg.Convention)
	}

	series.Rows = make([]model.SeriesRow, r.Grid.Minutes)
	for i := range series.Rows {
		row := model.SeriesRow{
			Timestamp: r.Grid.At(i),
			Values:    make(map[string]int64, len(series.Areas)),
		}
		for _, area := range series.Areas {
			v := int64(math.Round(smoothed[area][i]))
			row.Values[area] = v
			row.Total += v
		}
		series.Rows[i] = row
	}

	w.Trim(series)
	return series, nil
}
