// Package builtin provides the node types every engine deployment
// registers by default: arithmetic evaluation, pass-through, audio
// resampling, voice activity detection, silence-based segmentation, image
// resizing, and ffmpeg-backed audio transcoding.
package builtin

import (
	"context"
	"fmt"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/node"
)

// CalculatorType is the manifest-facing node_type for Calculator.
const CalculatorType = "calculator"

var calculatorParamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"operation": map[string]any{
			"type": "string",
			"enum": []any{"add", "subtract", "multiply", "divide"},
		},
		"operand": map[string]any{"type": "number"},
	},
	"required":             []any{"operation", "operand"},
	"additionalProperties": false,
}

// Calculator applies one arithmetic operation to the "value" field of every
// inbound JSON envelope, returning a new JSON envelope with the result. It
// is the simplest possible stateless transform node and exists mainly as a
// reference implementation for node authors.
type Calculator struct {
	operation string
	operand   float64
}

// NewCalculator returns a fresh, uninitialized Calculator instance.
func NewCalculator() node.Node {
	return &Calculator{}
}

// Describe returns Calculator's static descriptor.
func (c *Calculator) Describe() node.Descriptor {
	return node.Descriptor{
		Type:          CalculatorType,
		Version:       "1.0.0",
		Category:      "transform",
		AcceptedKinds: []data.Kind{data.KindJSON},
		ProducedKinds: []data.Kind{data.KindJSON},
		Streaming:     true,
		ParamSchema:   calculatorParamSchema,
	}
}

// Init stores the configured operation and operand for the session.
func (c *Calculator) Init(ctx context.Context, params map[string]any, state node.StateHandle) error {
	op, _ := params["operation"].(string)
	if op == "" {
		return fmt.Errorf("calculator: operation is required")
	}
	operand, ok := params["operand"].(float64)
	if !ok {
		return fmt.Errorf("calculator: operand must be a number")
	}
	c.operation = op
	c.operand = operand
	return nil
}

// ProcessChunk applies the configured operation to env's numeric "value"
// field and returns a single JSON envelope carrying the result.
func (c *Calculator) ProcessChunk(ctx context.Context, env data.Envelope) ([]data.Envelope, error) {
	if env.Kind != data.KindJSON || env.JSON == nil {
		return nil, node.NewError(CalculatorType, node.ErrorCodeInvalidInput, fmt.Errorf("calculator: expected a json envelope"))
	}

	obj, ok := env.JSON.Value.(map[string]any)
	if !ok {
		return nil, node.NewError(CalculatorType, node.ErrorCodeInvalidInput, fmt.Errorf("calculator: expected a json object"))
	}
	value, ok := obj["value"].(float64)
	if !ok {
		return nil, node.NewError(CalculatorType, node.ErrorCodeInvalidInput, fmt.Errorf("calculator: missing numeric \"value\" field"))
	}

	result, err := c.apply(value)
	if err != nil {
		return nil, node.NewError(CalculatorType, node.ErrorCodeInvalidInput, err)
	}

	out := data.NewJSON(map[string]any{"value": result}).WithSequence(env.SequenceOrZero())
	out.SessionID = env.SessionID
	return []data.Envelope{out}, nil
}

func (c *Calculator) apply(value float64) (float64, error) {
	switch c.operation {
	case "add":
		return value + c.operand, nil
	case "subtract":
		return value - c.operand, nil
	case "multiply":
		return value * c.operand, nil
	case "divide":
		if c.operand == 0 {
			return 0, fmt.Errorf("calculator: division by zero")
		}
		return value / c.operand, nil
	default:
		return 0, fmt.Errorf("calculator: unknown operation %q", c.operation)
	}
}

// Flush is a no-op: Calculator has no buffered state to emit.
func (c *Calculator) Flush(ctx context.Context) ([]data.Envelope, error) { return nil, nil }

// Teardown is a no-op: Calculator holds no resources.
func (c *Calculator) Teardown(ctx context.Context) error { return nil }
