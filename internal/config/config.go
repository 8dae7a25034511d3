package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Fields    FieldsConfig    `yaml:"fields" mapstructure:"fields"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// WorkspaceConfig locates the analysis workspace.
type WorkspaceConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Database  string `yaml:"database" mapstructure:"database"`
	Overwrite bool   `yaml:"overwrite" mapstructure:"overwrite"`
}

// AnalysisConfig names the input layers and tool parameters of the
// statistics pipeline. The snap tolerance is in map units, the split
// tolerance in meters.
type AnalysisConfig struct {
	Structures     string   `yaml:"structures" mapstructure:"structures"`
	Shoreline      string   `yaml:"shoreline" mapstructure:"shoreline"`
	AreaField      string   `yaml:"area_field" mapstructure:"area_field"`
	SnapTolerance  float64  `yaml:"snap_tolerance" mapstructure:"snap_tolerance"`
	SplitTolerance float64  `yaml:"split_tolerance_m" mapstructure:"split_tolerance_m"`
	MetersPerUnit  float64  `yaml:"meters_per_unit" mapstructure:"meters_per_unit"`
	Geographies    []string `yaml:"geographies" mapstructure:"geographies"`
}

// FieldsConfig configures field normalization.
type FieldsConfig struct {
	MappingFile string `yaml:"mapping_file" mapstructure:"mapping_file"`
}

// ExportConfig configures the batch exporter.
type ExportConfig struct {
	Database        string `yaml:"database" mapstructure:"database"`
	OutputDir       string `yaml:"output_dir" mapstructure:"output_dir"`
	Format          string `yaml:"format" mapstructure:"format"`
	IncludeGeometry bool   `yaml:"include_geometry" mapstructure:"include_geometry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("workspace.dir", "")
	v.SetDefault("workspace.database", "SOWs.db")
	v.SetDefault("workspace.overwrite", true)
	v.SetDefault("analysis.structures", "NOAA_SOWS_filtered")
	v.SetDefault("analysis.shoreline", "noaa_shoreline_diss")
	v.SetDefault("analysis.area_field", "Area_M")
	v.SetDefault("analysis.snap_tolerance", 500)
	v.SetDefault("analysis.split_tolerance_m", 0.3048)
	v.SetDefault("analysis.meters_per_unit", 1)
	v.SetDefault("analysis.geographies", []string{"Subbasins", "Counties", "DriftCells", "Shoretypes"})
	v.SetDefault("fields.mapping_file", "")
	v.SetDefault("export.database", "SOWS_deliverables.db")
	v.SetDefault("export.output_dir", "deliverables")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.include_geometry", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values a run cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Workspace.Database == "" {
		problems = append(problems, "workspace.database is empty")
	}
	if c.Analysis.Structures == "" {
		problems = append(problems, "analysis.structures is empty")
	}
	if c.Analysis.Shoreline == "" {
		problems = append(problems, "analysis.shoreline is empty")
	}
	if c.Analysis.AreaField == "" {
		problems = append(problems, "analysis.area_field is empty")
	}
	if c.Analysis.SnapTolerance <= 0 {
		problems = append(problems, "analysis.snap_tolerance must be positive")
	}
	if c.Analysis.SplitTolerance <= 0 {
		problems = append(problems, "analysis.split_tolerance_m must be positive")
	}
	if c.Analysis.MetersPerUnit <= 0 {
		problems = append(problems, "analysis.meters_per_unit must be positive")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
