package pipeline

import (
	"errors"
	"fmt"
	"runtime"

	"mammo-overlay/constants"
	"mammo-overlay/matcher"
	"mammo-overlay/overlay"
)

var ErrConfig = errors.New("invalid pipeline configuration")

// Config is read once at startup; components never consult viper.
type Config struct {
	Manifest      string        `json:"manifest"`
	SubjectColumn string        `json:"subject_column"`
	SeriesColumn  string        `json:"series_column"`
	AnnotationDir string        `json:"annotation_dir"`
	TieBreak      string        `json:"tie_break"`
	Style         overlay.Style `json:"style"`
	RenderInline  bool          `json:"render_inline"`
	Workers       int           `json:"workers"`
}

// WithDefaults fills unset optional fields.
func (config Config) WithDefaults() Config {
	if config.SubjectColumn == "" {
		config.SubjectColumn = constants.DefaultSubjectColumn
	}
	if config.SeriesColumn == "" {
		config.SeriesColumn = constants.DefaultSeriesColumn
	}
	if config.TieBreak == "" {
		config.TieBreak = constants.TieBreakFirstMatch
	}
	defaults := overlay.DefaultStyle()
	if config.Style.Color == "" {
		config.Style.Color = defaults.Color
	}
	if config.Style.LineWidth == 0 {
		config.Style.LineWidth = defaults.LineWidth
	}
	if config.Style.PointRadius == 0 {
		config.Style.PointRadius = defaults.PointRadius
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	return config
}

func (config Config) Validate() error {
	if config.Manifest == "" {
		return fmt.Errorf("%w: manifest path is empty", ErrConfig)
	}
	if config.AnnotationDir == "" {
		return fmt.Errorf("%w: annotation directory is empty", ErrConfig)
	}
	if _, err := matcher.NewTieBreak(config.TieBreak); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := config.Style.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}
