package loam

import "strings"

// VignetteDocument is the frontmatter (or JSON/YAML body) of a vignette file.
// Scalars are typed; nested sections stay generic so the schema check sees
// exactly what the author wrote. Loam strict mode yields json.Number for numbers.
type VignetteDocument struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	AIModel     string `json:"aiModel,omitempty" mapstructure:"aiModel"`

	DifficultyLevels  []any          `json:"difficultyLevels,omitempty" mapstructure:"difficultyLevels"`
	MaxResponseLength any            `json:"maxResponseLength,omitempty" mapstructure:"maxResponseLength"`
	Temperature       any            `json:"temperature,omitempty" mapstructure:"temperature"`
	Persona           map[string]any `json:"persona,omitempty" mapstructure:"persona"`
	Phases            []any          `json:"phases,omitempty" mapstructure:"phases"`
	Emotions          map[string]any `json:"emotions,omitempty" mapstructure:"emotions"`
	VoiceConfig       map[string]any `json:"voiceConfig,omitempty" mapstructure:"voiceConfig"`
}

// toMap rebuilds the raw vignette document. The markdown body, when present,
// becomes the persona background unless the frontmatter already sets one.
func (d VignetteDocument) toMap(id, body string) map[string]any {
	raw := map[string]any{
		"id":     id,
		"title":  d.Title,
		"phases": d.Phases,
	}
	if d.Phases == nil {
		raw["phases"] = []any{}
	}
	if d.Description != "" {
		raw["description"] = d.Description
	}
	if d.AIModel != "" {
		raw["aiModel"] = d.AIModel
	}
	if len(d.DifficultyLevels) > 0 {
		raw["difficultyLevels"] = d.DifficultyLevels
	}
	if d.MaxResponseLength != nil {
		raw["maxResponseLength"] = d.MaxResponseLength
	}
	if d.Temperature != nil {
		raw["temperature"] = d.Temperature
	}
	if d.Emotions != nil {
		raw["emotions"] = d.Emotions
	}
	if d.VoiceConfig != nil {
		raw["voiceConfig"] = d.VoiceConfig
	}

	persona := make(map[string]any, len(d.Persona)+1)
	for k, v := range d.Persona {
		persona[k] = v
	}
	if bg, _ := persona["background"].(string); bg == "" {
		if body = strings.TrimSpace(body); body != "" {
			persona["background"] = body
		}
	}
	if len(persona) > 0 {
		raw["persona"] = persona
	}
	return raw
}
