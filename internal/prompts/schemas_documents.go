package prompts

func DocumentAbstractSchema() map[string]any {
	return SchemaVersionedObject(1, map[string]any{
		"abstract_md": StringSchema(),
	}, []string{"abstract_md"})
}

func DocumentKeywordsSchema() map[string]any {
	keyword := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"term":   StringSchema(),
			"weight": NumberSchema(),
		},
		"required":             []string{"term", "weight"},
		"additionalProperties": false,
	}
	return SchemaVersionedObject(1, map[string]any{
		"keywords": map[string]any{"type": "array", "items": keyword},
	}, []string{"keywords"})
}

func DocumentQuizSchema() map[string]any {
	question := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt_md":      StringSchema(),
			"options":        StringArraySchema(),
			"correct_index":  IntSchema(),
			"explanation_md": StringSchema(),
		},
		"required":             []string{"prompt_md", "options", "correct_index", "explanation_md"},
		"additionalProperties": false,
	}
	return SchemaVersionedObject(1, map[string]any{
		"questions": map[string]any{"type": "array", "items": question},
	}, []string{"questions"})
}
