// Package validation checks form drafts field by field. Every field is checked so the
// caller can show all messages at once; a draft is accepted only when none fail.
package validation

import (
	"math"
	"net/mail"
	"sort"
	"strategy-desk/internal/models"
	"strings"
	"unicode/utf8"
)

// Code classifies why a field failed.
type Code string

const (
	CodeRequired Code = "required"
	CodeTooSmall Code = "too_small"
	CodeRange    Code = "range"
	CodeInvalid  Code = "invalid"
	CodeNotFound Code = "not_found"
)

// FieldError is the failure of a single field.
type FieldError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// FieldErrors maps a form field name to its failure.
type FieldErrors map[string]FieldError

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f].Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed.
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

func (fe FieldErrors) add(field string, code Code, msg string) {
	if _, exists := fe[field]; exists {
		return
	}
	fe[field] = FieldError{Code: code, Message: msg}
}

func (fe FieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// UserDirectory answers whether a user id exists.
type UserDirectory interface {
	HasUser(id string) bool
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func kindOptions() []string {
	out := make([]string, 0, len(models.StrategyKinds))
	for _, k := range models.StrategyKinds {
		out = append(out, string(k))
	}
	return out
}

func timeframeOptions() []string {
	out := make([]string, 0, len(models.Timeframes))
	for _, tf := range models.Timeframes {
		out = append(out, string(tf))
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func selectField(fe FieldErrors, field, value string, options []string, requiredMsg, invalidMsg string) {
	switch {
	case strings.TrimSpace(value) == "":
		fe.add(field, CodeRequired, requiredMsg)
	case !oneOf(value, options):
		fe.add(field, CodeInvalid, invalidMsg)
	}
}

func minNumber(fe FieldErrors, field string, v, min float64, msg string) {
	switch {
	case !finite(v):
		fe.add(field, CodeInvalid, "Expected a number.")
	case v < min:
		fe.add(field, CodeTooSmall, msg)
	}
}

// Strategy validates the add/edit strategy form. users may be nil, in which case the owner
// only has to be present.
func Strategy(d models.StrategyDraft, users UserDirectory) error {
	fe := FieldErrors{}

	if utf8.RuneCountInString(d.Name) < 2 {
		fe.add("name", CodeTooSmall, "Strategy name must be at least 2 characters.")
	}
	selectField(fe, "exchange", d.Exchange, models.StrategyExchanges,
		"Please select an exchange.", "Please select a supported exchange.")
	selectField(fe, "tradingPair", d.TradingPair, models.TradingPairs,
		"Please select a trading pair.", "Please select a supported trading pair.")
	selectField(fe, "strategy", d.Strategy, kindOptions(),
		"Please select a strategy.", "Please select a supported strategy.")
	selectField(fe, "timeframe", d.Timeframe, timeframeOptions(),
		"Please select a timeframe.", "Please select a supported timeframe.")

	minNumber(fe, "initialInvestment", d.InitialInvestment, 10, "Initial investment must be at least 10 USDT.")

	switch {
	case !finite(d.RiskLevel):
		fe.add("riskLevel", CodeInvalid, "Expected a number.")
	case d.RiskLevel < 1 || d.RiskLevel > 10:
		fe.add("riskLevel", CodeRange, "Risk level must be between 1 and 10.")
	case d.RiskLevel != math.Trunc(d.RiskLevel):
		fe.add("riskLevel", CodeInvalid, "Risk level must be a whole number.")
	}

	minNumber(fe, "takeProfitPercentage", d.TakeProfitPercentage, 0.1, "Take profit must be at least 0.1%.")
	minNumber(fe, "stopLossPercentage", d.StopLossPercentage, 0.1, "Stop loss must be at least 0.1%.")

	switch {
	case strings.TrimSpace(d.Owner) == "":
		fe.add("owner", CodeRequired, "Please select a user.")
	case users != nil && !users.HasUser(d.Owner):
		fe.add("owner", CodeNotFound, "Please select an existing user.")
	}

	return fe.err()
}

// Connection validates the add API connection form.
func Connection(d models.APIConnectionDraft) error {
	fe := FieldErrors{}

	selectField(fe, "exchange", d.Exchange, models.ConnectionExchanges,
		"Please select an exchange.", "Please select a supported exchange.")
	if utf8.RuneCountInString(d.APIKey) < 5 {
		fe.add("apiKey", CodeTooSmall, "API key must be valid.")
	}
	if utf8.RuneCountInString(d.APISecret) < 5 {
		fe.add("apiSecret", CodeTooSmall, "API secret must be valid.")
	}
	// The Telegram chat id is free text and optional.

	return fe.err()
}

// SupportTicket validates the contact form.
func SupportTicket(d models.SupportTicketDraft) error {
	fe := FieldErrors{}

	if utf8.RuneCountInString(d.Name) < 2 {
		fe.add("name", CodeTooSmall, "Name must be at least 2 characters.")
	}
	if addr, err := mail.ParseAddress(d.Email); err != nil || addr.Address != d.Email {
		fe.add("email", CodeInvalid, "Please enter a valid email address.")
	}
	selectField(fe, "subject", d.Subject, models.SupportSubjects,
		"Please select a subject.", "Please select a subject.")
	if utf8.RuneCountInString(d.Message) < 10 {
		fe.add("message", CodeTooSmall, "Message must be at least 10 characters.")
	}

	return fe.err()
}
