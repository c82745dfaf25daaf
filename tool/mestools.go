package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atbash-labs/mesgraph/graph"
	"github.com/atbash-labs/mesgraph/mes"
	"github.com/atbash-labs/mesgraph/schema"
)

// RegisterOntologyTools registers the standard MES tool set against the
// given extension. Tool handlers dispatch straight into the extension; the
// registry itself stays pure metadata.
func RegisterOntologyTools(reg *Registry, ext *mes.Extension) error {
	configs := []*Config{
		upsertMaterialConfig(ext),
		upsertBatchConfig(ext),
		transitionBatchConfig(ext),
		linkConsumptionConfig(ext),
		attachDeviationConfig(ext),
		getGenealogyConfig(ext),
		buildRCAContextConfig(ext),
	}

	for _, cfg := range configs {
		t, err := New(cfg)
		if err != nil {
			return fmt.Errorf("build tool: %w", err)
		}
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

var categorySchema = schema.EnumWithDesc("Material category", "raw", "intermediate", "finished")

func upsertMaterialConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("upsert_material").
		SetDescription("Create or update a material definition by its (name, category) natural key. Repeating the call with the same key merges attributes instead of duplicating the material.").
		SetTags([]string{"mes", "material"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"name":     schema.StringWithDesc("Material name or code"),
			"category": categorySchema,
			"unit":     schema.StringWithDesc("Unit of measure, e.g. kg"),
		}, "name", "category")).
		SetOutputSchema(schema.Object(map[string]schema.JSON{
			"name":     schema.String(),
			"category": schema.String(),
			"unit":     schema.String(),
			"created":  schema.Bool(),
		})).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			category, err := mes.ParseMaterialCategory(stringArg(input, "category"))
			if err != nil {
				return nil, err
			}
			material := &mes.Material{
				Name:     stringArg(input, "name"),
				Category: category,
				Unit:     stringArg(input, "unit"),
			}
			merged, created, err := ext.UpsertMaterial(ctx, material)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"name":     merged.Name,
				"category": merged.Category.String(),
				"unit":     merged.Unit,
				"created":  created,
			}, nil
		})
}

func upsertBatchConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("upsert_batch").
		SetDescription("Create or update a production batch by its batch number. Links the batch to the material it produces and, when given, to its process step.").
		SetTags([]string{"mes", "batch"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"number":            schema.StringWithDesc("Batch/lot number"),
			"material":          schema.StringWithDesc("Name of the produced material"),
			"material_category": categorySchema,
			"process_step":      schema.StringWithDesc("Process step the batch runs on"),
			"status":            schema.EnumWithDesc("Batch status", "Planned", "InProgress", "Completed", "OnHold", "Rejected"),
			"quantity":          schema.NumberWithDesc("Produced quantity").WithMinimum(0),
			"unit":              schema.StringWithDesc("Unit of measure for the quantity"),
			"started_at":        schema.StringWithDesc("Production start, RFC 3339"),
			"completed_at":      schema.StringWithDesc("Production end, RFC 3339"),
		}, "number", "material", "material_category")).
		SetOutputSchema(schema.Object(map[string]schema.JSON{
			"number":  schema.String(),
			"status":  schema.String(),
			"created": schema.Bool(),
		})).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			category, err := mes.ParseMaterialCategory(stringArg(input, "material_category"))
			if err != nil {
				return nil, err
			}
			batch := &mes.Batch{
				Number:           stringArg(input, "number"),
				Material:         stringArg(input, "material"),
				MaterialCategory: category,
				ProcessStep:      stringArg(input, "process_step"),
				Quantity:         floatArg(input, "quantity"),
				Unit:             stringArg(input, "unit"),
			}
			if raw := stringArg(input, "status"); raw != "" {
				batch.Status, err = mes.ParseBatchStatus(raw)
				if err != nil {
					return nil, err
				}
			}
			if batch.StartedAt, err = timeArg(input, "started_at"); err != nil {
				return nil, err
			}
			if batch.CompletedAt, err = timeArg(input, "completed_at"); err != nil {
				return nil, err
			}

			merged, created, err := ext.UpsertBatch(ctx, batch)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"number":  merged.Number,
				"status":  merged.Status.String(),
				"created": created,
			}, nil
		})
}

func transitionBatchConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("transition_batch").
		SetDescription("Move a batch to a new status. Transitions are monotonic: Planned to InProgress to Completed/Rejected, with OnHold reachable only from InProgress. Illegal moves fail without modifying the batch.").
		SetTags([]string{"mes", "batch"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"number": schema.StringWithDesc("Batch/lot number"),
			"status": schema.EnumWithDesc("Target status", "InProgress", "Completed", "OnHold", "Rejected"),
		}, "number", "status")).
		SetOutputSchema(schema.Object(map[string]schema.JSON{
			"number": schema.String(),
			"status": schema.String(),
		})).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			status, err := mes.ParseBatchStatus(stringArg(input, "status"))
			if err != nil {
				return nil, err
			}
			batch, err := ext.TransitionBatch(ctx, stringArg(input, "number"), status)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"number": batch.Number,
				"status": batch.Status.String(),
			}, nil
		})
}

func linkConsumptionConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("link_consumption").
		SetDescription("Record that a batch consumed a quantity of a material. Both the batch and the material must already exist. Repeating the link updates the quantity instead of duplicating it.").
		SetTags([]string{"mes", "genealogy"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"batch_number":      schema.StringWithDesc("Consuming batch number"),
			"material":          schema.StringWithDesc("Consumed material name"),
			"material_category": categorySchema,
			"quantity":          schema.NumberWithDesc("Consumed quantity").WithMinimum(0),
		}, "batch_number", "material", "material_category", "quantity")).
		SetOutputSchema(schema.Object(map[string]schema.JSON{
			"linked": schema.Bool(),
		})).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			category, err := mes.ParseMaterialCategory(stringArg(input, "material_category"))
			if err != nil {
				return nil, err
			}
			err = ext.LinkConsumption(ctx,
				stringArg(input, "batch_number"),
				stringArg(input, "material"),
				category,
				floatArg(input, "quantity"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"linked": true}, nil
		})
}

func attachDeviationConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("attach_deviation").
		SetDescription("Attach a deviation (out-of-limit reading or quality exception) to a batch or CCP. Deviations are append-only: identical readings are stored as distinct facts.").
		SetTags([]string{"mes", "quality"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"target_type": schema.EnumWithDesc("Entity the deviation attaches to", "batch", "ccp"),
			"target_id":   schema.StringWithDesc("Batch number or CCP identifier"),
			"timestamp":   schema.StringWithDesc("Observation time, RFC 3339"),
			"value":       schema.NumberWithDesc("Measured value"),
			"severity":    schema.EnumWithDesc("Deviation severity", "minor", "major", "critical"),
			"note":        schema.StringWithDesc("Optional annotation"),
		}, "target_type", "target_id", "timestamp", "value", "severity")).
		SetOutputSchema(schema.Object(map[string]schema.JSON{
			"deviation_id": schema.String(),
		})).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			severity, err := mes.ParseSeverity(stringArg(input, "severity"))
			if err != nil {
				return nil, err
			}
			timestamp, err := timeArg(input, "timestamp")
			if err != nil {
				return nil, err
			}
			deviation, err := mes.NewDeviation(timestamp, floatArg(input, "value"), severity)
			if err != nil {
				return nil, err
			}
			if note := stringArg(input, "note"); note != "" {
				deviation.WithNote(note)
			}

			targetType := graph.NodeTypeBatch
			if stringArg(input, "target_type") == "ccp" {
				targetType = graph.NodeTypeCCP
			}
			attached, err := ext.AttachDeviation(ctx, targetType, stringArg(input, "target_id"), deviation)
			if err != nil {
				return nil, err
			}
			return map[string]any{"deviation_id": attached.ID}, nil
		})
}

func getGenealogyConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("get_genealogy").
		SetDescription("Traverse the material genealogy of a batch. Upstream walks toward consumed inputs and their producing batches; downstream walks toward produced outputs and their consumers. The result is grouped by hop and flags truncation and cycles.").
		SetTags([]string{"mes", "genealogy"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"batch_number": schema.StringWithDesc("Root batch number"),
			"direction":    schema.EnumWithDesc("Traversal direction", "upstream", "downstream"),
			"max_hops":     schema.Int().WithDescription("Hop limit; 0 means unlimited").WithMinimum(0),
		}, "batch_number", "direction")).
		SetOutputSchema(schema.Any()).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			direction, err := mes.ParseLineageDirection(stringArg(input, "direction"))
			if err != nil {
				return nil, err
			}
			result, err := ext.Lineage(ctx, stringArg(input, "batch_number"), direction, int(floatArg(input, "max_hops")))
			if err != nil {
				return nil, err
			}
			return toMap(result)
		})
}

func buildRCAContextConfig(ext *mes.Extension) *Config {
	return NewConfig().
		SetName("build_rca_context").
		SetDescription("Assemble the root-cause-analysis context for a batch: upstream genealogy, the CCPs at the process steps involved, and the deviations inside the time window, sorted by timestamp.").
		SetTags([]string{"mes", "quality"}).
		SetInputSchema(schema.Object(map[string]schema.JSON{
			"batch_number": schema.StringWithDesc("Batch under investigation"),
			"hop_limit":    schema.Int().WithDescription("Upstream genealogy hop limit").WithMinimum(1).WithDefault(2),
			"window_from":  schema.StringWithDesc("Window start, RFC 3339; overrides the derived production window"),
			"window_to":    schema.StringWithDesc("Window end, RFC 3339; overrides the derived production window"),
		}, "batch_number")).
		SetOutputSchema(schema.Any()).
		SetHandler(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			var opts []mes.RCAOption
			if hops := int(floatArg(input, "hop_limit")); hops > 0 {
				opts = append(opts, mes.WithHopLimit(hops))
			}
			from, err := timeArg(input, "window_from")
			if err != nil {
				return nil, err
			}
			to, err := timeArg(input, "window_to")
			if err != nil {
				return nil, err
			}
			if !from.IsZero() || !to.IsZero() {
				opts = append(opts, mes.WithWindow(from, to))
			}

			result, err := ext.BuildRCAContext(ctx, stringArg(input, "batch_number"), opts...)
			if err != nil {
				return nil, err
			}
			return toMap(result)
		})
}

// stringArg reads a string argument, tolerating absence.
func stringArg(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

// floatArg reads a numeric argument, tolerating absence and the float64
// widening JSON decoding applies to all numbers.
func floatArg(input map[string]any, key string) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// timeArg reads an optional RFC 3339 timestamp argument.
func timeArg(input map[string]any, key string) (time.Time, error) {
	raw := stringArg(input, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("argument %q: %w", key, err)
	}
	return t, nil
}

// toMap converts a result struct to the decoded-JSON object form handlers
// return.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
