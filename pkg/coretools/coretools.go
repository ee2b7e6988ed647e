package coretools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harun/loom/pkg/tool"
)

// DefaultDailyRate is the flat per-day trip rate used when the model
// does not supply one.
const DefaultDailyRate = 350.0

// Options configures core tool registration.
type Options struct {
	// Now supplies the clock for current_time. Defaults to time.Now.
	Now func() time.Time
	// DailyRate overrides the flat per-day trip rate.
	DailyRate float64
}

// RegisterCoreTools registers the baseline assistant tools.
func RegisterCoreTools(registry *tool.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DailyRate <= 0 {
		opts.DailyRate = DefaultDailyRate
	}

	tools := []tool.Definition{
		currentTimeTool(opts),
		calculateTool(),
		tripCostTool(opts),
	}

	for _, def := range tools {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}

func currentTimeTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:        "current_time",
		Description: "Get the current date and time, optionally in a named IANA timezone.",
		Parameters: []tool.Parameter{
			{Name: "timezone", Type: "string", Description: "IANA timezone name, e.g. Europe/Amsterdam (default UTC)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			loc := time.UTC
			if name, ok := params["timezone"].(string); ok && strings.TrimSpace(name) != "" {
				parsed, err := time.LoadLocation(strings.TrimSpace(name))
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", name)
				}
				loc = parsed
			}

			now := opts.Now().In(loc)
			return map[string]interface{}{
				"time":     now.Format(time.RFC3339),
				"timezone": loc.String(),
				"weekday":  now.Weekday().String(),
			}, nil
		},
	}
}

func calculateTool() tool.Definition {
	return tool.Definition{
		Name:        "calculate",
		Description: "Perform basic arithmetic on two numbers.",
		Parameters: []tool.Parameter{
			{Name: "operation", Type: "string", Description: "One of add, subtract, multiply, divide", Required: true},
			{Name: "a", Type: "number", Description: "First operand", Required: true},
			{Name: "b", Type: "number", Description: "Second operand", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			operation, _ := params["operation"].(string)
			a, err := toFloat(params["a"])
			if err != nil {
				return nil, fmt.Errorf("invalid operand a: %w", err)
			}
			b, err := toFloat(params["b"])
			if err != nil {
				return nil, fmt.Errorf("invalid operand b: %w", err)
			}

			var result float64
			switch strings.ToLower(strings.TrimSpace(operation)) {
			case "add":
				result = a + b
			case "subtract":
				result = a - b
			case "multiply":
				result = a * b
			case "divide":
				if b == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				result = a / b
			default:
				return nil, fmt.Errorf("unknown operation %q", operation)
			}

			return formatNumber(result), nil
		},
	}
}

func tripCostTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:        "trip_cost",
		Description: "Estimate the total cost of a trip from its length in days and a per-day rate.",
		Parameters: []tool.Parameter{
			{Name: "days", Type: "integer", Description: "Trip length in days", Required: true},
			{Name: "daily_rate", Type: "number", Description: "Cost per day in dollars (default 350)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			days, err := toFloat(params["days"])
			if err != nil {
				return nil, fmt.Errorf("invalid days: %w", err)
			}
			if days <= 0 {
				return nil, fmt.Errorf("days must be positive")
			}

			rate := opts.DailyRate
			if raw, ok := params["daily_rate"]; ok {
				parsed, err := toFloat(raw)
				if err != nil {
					return nil, fmt.Errorf("invalid daily_rate: %w", err)
				}
				if parsed > 0 {
					rate = parsed
				}
			}

			total := days * rate
			return map[string]interface{}{
				"days":       formatNumber(days),
				"daily_rate": formatNumber(rate),
				"total":      formatNumber(total),
			}, nil
		},
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("not a number: %v", value)
	}
}

// formatNumber renders without a trailing .0 for whole values so the
// model sees "2800" rather than "2800.000000".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
