package config

import (
	"fmt"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/spf13/viper"
)

// Tuning is the operator-editable part of the configuration: field ranges
// and the state TTL.
type Tuning struct {
	Limits   domain.Limits
	StateTTL time.Duration
}

// LoadLimits reads a YAML tuning file. Keys left out of the file keep their
// stock values.
func LoadLimits(path string) (Tuning, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	def := domain.DefaultLimits()
	v.SetDefault("font_size_min", def.FontSizeMin)
	v.SetDefault("font_size_max", def.FontSizeMax)
	v.SetDefault("font_size_step", def.FontSizeStep)
	v.SetDefault("line_spacing_min", def.LineSpacingMin)
	v.SetDefault("line_spacing_max", def.LineSpacingMax)
	v.SetDefault("line_spacing_step", def.LineSpacingStep)
	v.SetDefault("offset_min", def.OffsetMin)
	v.SetDefault("offset_max", def.OffsetMax)
	v.SetDefault("offset_step", def.OffsetStep)
	v.SetDefault("max_text_length", def.MaxTextLength)
	v.SetDefault("state_ttl_hours", 24)

	if err := v.ReadInConfig(); err != nil {
		return Tuning{}, fmt.Errorf("read %s: %w", path, err)
	}

	var limits domain.Limits
	if err := v.Unmarshal(&limits); err != nil {
		return Tuning{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := limits.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("%s: %w", path, err)
	}

	return Tuning{
		Limits:   limits,
		StateTTL: time.Duration(v.GetInt("state_ttl_hours")) * time.Hour,
	}, nil
}
