package forms

import (
	"fmt"
	"math"
	"reflect"
	"strategy-desk/internal/models"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// coerceNumber turns text into a float the way a numeric form input does: blank is zero and
// anything unparseable becomes NaN, which validation then reports on the field.
func coerceNumber(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Float64 {
		return data, nil
	}
	s := strings.TrimSpace(reflect.ValueOf(data).String())
	if s == "" {
		return 0.0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), nil
	}
	return v, nil
}

func decode(input map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(coerceNumber),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode form input: %w", err)
	}
	return nil
}

// DecodeStrategyDraft reads loosely typed input over the default draft.
func DecodeStrategyDraft(input map[string]interface{}) (models.StrategyDraft, error) {
	return DecodeStrategyDraftOver(models.DefaultStrategyDraft(), input)
}

// DecodeStrategyDraftOver reads input over base. Keys absent from input keep base's values.
func DecodeStrategyDraftOver(base models.StrategyDraft, input map[string]interface{}) (models.StrategyDraft, error) {
	err := decode(input, &base)
	return base, err
}

// DecodeConnectionDraft reads loosely typed input into a connection draft.
func DecodeConnectionDraft(input map[string]interface{}) (models.APIConnectionDraft, error) {
	var draft models.APIConnectionDraft
	err := decode(input, &draft)
	return draft, err
}

// DecodeSupportTicket reads loosely typed input into a support ticket draft.
func DecodeSupportTicket(input map[string]interface{}) (models.SupportTicketDraft, error) {
	var draft models.SupportTicketDraft
	err := decode(input, &draft)
	return draft, err
}
