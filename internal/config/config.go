package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"gopkg.in/yaml.v3"

	"license-exam-service/internal/domain"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
		Format string `yaml:"format" validate:"omitempty,oneof=json pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl" validate:"omitempty,duration"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url" validate:"omitempty,url"`
		Exchange string `yaml:"exchange" validate:"required_with=URL"`
	} `yaml:"amqp"`
	QuestionSets struct {
		TTL  string `yaml:"ttl" validate:"omitempty,duration"`
		Path string `yaml:"path"`
	} `yaml:"questionSets"`
	Exam struct {
		DurationSeconds int    `yaml:"durationSeconds" validate:"gt=0"`
		PassThreshold   int    `yaml:"passThreshold" validate:"gte=0,lte=100"`
		MaxAttempts     int    `yaml:"maxAttempts" validate:"gte=0"`
		CooldownDays    int    `yaml:"cooldownDays" validate:"gte=0"`
		TickInterval    string `yaml:"tickInterval" validate:"omitempty,positive_duration"`
	} `yaml:"exam"`
}

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports every failing field.
func (c Config) Validate() error {
	v, trans := newValidator()
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, strings.TrimPrefix(fe.Namespace(), "Config.")+": "+fe.Translate(trans))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// ExamConfig returns the exam rules section.
func (c Config) ExamConfig() domain.ExamConfig {
	return domain.ExamConfig{
		DurationSeconds: c.Exam.DurationSeconds,
		PassThreshold:   c.Exam.PassThreshold,
		MaxAttempts:     c.Exam.MaxAttempts,
		CooldownDays:    c.Exam.CooldownDays,
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func newValidator() (*validator.Validate, ut.Translator) {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	// a zero tick interval would leave countdowns without a clock
	_ = v.RegisterValidation("positive_duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})

	enLocale := en.New()
	trans, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)
	_ = v.RegisterTranslation("duration", trans,
		func(t ut.Translator) error {
			return t.Add("duration", "{0} must be a duration such as 30s or 10m", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("duration", fe.Field())
			return msg
		},
	)
	_ = v.RegisterTranslation("positive_duration", trans,
		func(t ut.Translator) error {
			return t.Add("positive_duration", "{0} must be a positive duration such as 1s", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("positive_duration", fe.Field())
			return msg
		},
	)
	return v, trans
}
