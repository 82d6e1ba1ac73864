package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(Message{Message: "done"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"message": "done"}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E201", "invalid product", map[string]string{"field": "id"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, "invalid product", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	view := CartView{
		CartID:        "c-1",
		Owner:         "7",
		Outcome:       "added",
		Lines:         []LineView{{Index: 0, ProductID: 3, Name: "Z", Quantity: 3, UnitPrice: "80.00", Source: "final", LineTotal: "240.00"}},
		TotalQuantity: 3,
		TotalPrice:    "240.00",
		Warnings:      []string{"product 9 has no price data"},
	}
	require.NoError(t, formatter.Success(view))

	out := buf.String()
	assert.Contains(t, out, "added\n")
	assert.Contains(t, out, "cart c-1 (user 7)")
	assert.Contains(t, out, "#3 Z")
	assert.Contains(t, out, "@ 80.00 (final)")
	assert.Contains(t, out, "= 240.00")
	assert.Contains(t, out, "total: 3 items, 240.00")
	assert.Contains(t, out, "warning: product 9 has no price data")
}

func TestOutputFormatter_TextEmptyCart(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(CartView{CartID: "c", Owner: "1", TotalPrice: "0.00"}))
	assert.Contains(t, buf.String(), "(empty)")
}

func TestOutputFormatter_TextFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E001", "not found", nil))
	assert.Equal(t, "Error [E001]: not found\n", buf.String())
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")
	err := WrapExitError(ExitFailure, "failed to save", base)

	assert.Equal(t, "failed to save: disk full", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
