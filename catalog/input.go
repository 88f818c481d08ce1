package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Input is a decoded skill request, pre-filled with schema defaults.
type Input any

type WhaleTrackerInput struct {
	Timeframe string `json:"timeframe" validate:"oneof=24h 7d 30d"`
	MinAmount int64  `json:"minAmount" validate:"min=10000"`
	Limit     int    `json:"limit" validate:"min=1,max=100"`
}

func newWhaleTrackerInput() Input {
	return &WhaleTrackerInput{Timeframe: "24h", MinAmount: 100_000, Limit: 10}
}

type ContentCraftInput struct {
	Text      string `json:"text" validate:"required,min=10,max=5000"`
	Tone      string `json:"tone" validate:"oneof=professional casual technical"`
	MaxLength int    `json:"maxLength" validate:"min=50,max=2000"`
}

func newContentCraftInput() Input {
	return &ContentCraftInput{Tone: "professional", MaxLength: 500}
}

type StacksScoutInput struct {
	Metrics   []string `json:"metrics" validate:"min=1,dive,oneof=tvl active_wallets transactions block_height"`
	Timeframe string   `json:"timeframe" validate:"oneof=24h 7d 30d"`
}

func newStacksScoutInput() Input {
	return &StacksScoutInput{Metrics: []string{"block_height", "transactions"}, Timeframe: "24h"}
}

type ProfileProInput struct {
	ProfileURL    string `json:"profileUrl" validate:"required,url"`
	AnalysisDepth string `json:"analysisDepth" validate:"oneof=basic detailed"`
}

func newProfileProInput() Input {
	return &ProfileProInput{AnalysisDepth: "basic"}
}

type MemeRadarInput struct {
	Limit    int    `json:"limit" validate:"min=1,max=50"`
	Category string `json:"category" validate:"oneof=all bitcoin stacks defi"`
}

func newMemeRadarInput() Input {
	return &MemeRadarInput{Limit: 10, Category: "all"}
}

// GenericInput carries free-form input for skills without a schema.
type GenericInput map[string]any

// InputError lists the fields that failed validation.
type InputError struct {
	Fields map[string]string
}

func (e *InputError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON decodes a JSON request body against the skill's schema.
// An empty body yields the defaults.
func DecodeJSON(s *Skill, body []byte) (Input, error) {
	in := s.NewInput()
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, in); err != nil {
			return nil, &InputError{Fields: map[string]string{"body": err.Error()}}
		}
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	return in, nil
}

// DecodeQuery decodes query parameters against the skill's schema, coercing
// numeric fields. Repeated or comma-separated values fill slice fields.
func DecodeQuery(s *Skill, query url.Values) (Input, error) {
	in := s.NewInput()

	if generic, ok := in.(*GenericInput); ok {
		out := GenericInput{}
		for key, values := range query {
			if len(values) > 0 {
				out[key] = values[0]
			}
		}
		*generic = out
		return generic, nil
	}

	v := reflect.ValueOf(in).Elem()
	t := v.Type()
	fieldErrs := map[string]string{}
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		values, present := query[name]
		if !present || len(values) == 0 {
			continue
		}

		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(values[0])
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil {
				fieldErrs[name] = "must be an integer"
				continue
			}
			field.SetInt(n)
		case reflect.Slice:
			var items []string
			for _, value := range values {
				for _, item := range strings.Split(value, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
			}
			field.Set(reflect.ValueOf(items))
		}
	}
	if len(fieldErrs) > 0 {
		return nil, &InputError{Fields: fieldErrs}
	}

	if err := Validate(in); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate runs the schema rules of a decoded input.
func Validate(in Input) error {
	if _, ok := in.(*GenericInput); ok {
		return nil
	}

	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate input: %w", err)
	}
	fieldErrs := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		fieldErrs[fe.Field()] = "failed " + reason
	}
	return &InputError{Fields: fieldErrs}
}

// EncodeQuery flattens an input into query parameters for GET skills.
func EncodeQuery(input any) (url.Values, error) {
	values := url.Values{}
	if input == nil {
		return values, nil
	}

	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}

	for key, raw := range fields {
		switch v := raw.(type) {
		case nil:
		case []any:
			for _, item := range v {
				values.Add(key, queryValue(item))
			}
		default:
			values.Set(key, queryValue(v))
		}
	}
	return values, nil
}

func queryValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		data, _ := json.Marshal(x)
		return string(data)
	}
}
