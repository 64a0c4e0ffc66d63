package events

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeForm maps a flat form record onto EventInput. Unknown fields are
// ignored and surrounding whitespace is trimmed.
func DecodeForm(record map[string]string) (EventInput, error) {
	trimmed := make(map[string]any, len(record))
	for k, v := range record {
		trimmed[k] = strings.TrimSpace(v)
	}

	var input EventInput
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &input,
		TagName:          "form",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return EventInput{}, fmt.Errorf("events: form decoder: %w", err)
	}
	if err := decoder.Decode(trimmed); err != nil {
		return EventInput{}, fmt.Errorf("events: decode form: %w", err)
	}
	return input, nil
}
