// Package schema provides declarative JSON Schema builders and validation
// for tool parameter schemas.
//
// Schemas are built with composable constructors:
//
//	params := schema.Object(map[string]schema.JSON{
//		"number":   schema.StringWithDesc("Batch number"),
//		"quantity": schema.Number().WithMinimum(0),
//	}, "number")
//
// and validated against decoded JSON values:
//
//	if err := params.Validate(args); err != nil {
//		return err
//	}
//
// The package covers the subset of JSON Schema the tool registry needs:
// primitive types, objects with required fields, arrays, enums, and numeric
// bounds. It performs no remote resolution and has no notion of $ref.
package schema
