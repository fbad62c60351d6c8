package tools

// Schema helpers for building JSON Schema definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// IntegerProperty creates an integer property with optional description.
func IntegerProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// AmountProperty creates the amount property shared by the vault tools.
func AmountProperty(unit string) map[string]interface{} {
	return StringProperty("Amount of " + unit + " as a decimal string (e.g. '12.5'), " +
		"'max' for the whole balance, or a percentage of it (e.g. '25%')")
}

// AmountOfProperty is AmountProperty for kinds whose 'max' and percentages
// are taken from a balance in a different unit than the amount.
func AmountOfProperty(unit, base string) map[string]interface{} {
	return StringProperty("Amount of " + unit + " as a decimal string (e.g. '12.5'), " +
		"or a percentage of the " + base + " (e.g. '25%'; 'max' is 100% of the " + base +
		", which is the same " + unit + " amount only when one share is worth one token)")
}

// KindProperty creates the vault operation kind property.
func KindProperty(description string) map[string]interface{} {
	return StringEnumProperty(description, "deposit", "mint", "redeem", "withdraw")
}

// WithThought adds a thought parameter to an existing schema.
// If requireThought is true, "thought" is added to the required array.
func WithThought(schema map[string]interface{}, requireThought bool) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range schema {
		result[k] = v
	}

	props, ok := result["properties"].(map[string]interface{})
	if !ok {
		props = make(map[string]interface{})
	}
	cloned := make(map[string]interface{}, len(props)+1)
	for k, v := range props {
		cloned[k] = v
	}
	props = cloned
	result["properties"] = props

	props["thought"] = StringProperty(
		"Your reasoning for this call: what you checked (balance, preview, status) " +
			"and what you expect to happen. Required for operations that move funds.",
	)

	if requireThought {
		required, _ := result["required"].([]string)
		result["required"] = append(append([]string{}, required...), "thought")
	}

	return result
}

// BuildSchemaWithThought creates an ObjectSchema and adds thought support in one call.
func BuildSchemaWithThought(properties map[string]interface{}, requireThought bool, required ...string) map[string]interface{} {
	schema := ObjectSchema(properties, required...)
	return WithThought(schema, requireThought)
}
