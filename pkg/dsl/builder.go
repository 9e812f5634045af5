package dsl

import (
	"fmt"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

// Builder manages the vignette construction.
type Builder struct {
	vignette domain.Vignette
	phases   []*PhaseBuilder
}

// New creates a new vignette builder.
func New(id string) *Builder {
	return &Builder{
		vignette: domain.Vignette{ID: id},
	}
}

// Title sets the display title.
func (b *Builder) Title(title string) *Builder {
	b.vignette.Title = title
	return b
}

// Description sets the free-text description.
func (b *Builder) Description(desc string) *Builder {
	b.vignette.Description = desc
	return b
}

// Persona sets who the AI plays.
func (b *Builder) Persona(name, role, background string, traits ...string) *Builder {
	b.vignette.Persona = domain.Persona{Name: name, Role: role, Background: background, Traits: traits}
	return b
}

// Levels restricts the offered difficulties.
func (b *Builder) Levels(levels ...domain.Difficulty) *Builder {
	b.vignette.DifficultyLevels = levels
	return b
}

// Model pins the model and its sampling parameters.
func (b *Builder) Model(name string, maxTokens int, temperature float64) *Builder {
	b.vignette.AIModel = name
	b.vignette.MaxResponseLength = maxTokens
	b.vignette.Temperature = &temperature
	return b
}

// Emotions sets the mood scale.
func (b *Builder) Emotions(cfg domain.EmotionConfig) *Builder {
	b.vignette.Emotions = cfg
	return b
}

// Voice sets the synthesis parameters.
func (b *Builder) Voice(cfg domain.VoiceConfig) *Builder {
	b.vignette.VoiceConfig = &cfg
	return b
}

// Phase adds a phase in declaration order. The first phase added is the
// initial one. If the phase already exists, it returns the existing builder.
func (b *Builder) Phase(id string) *PhaseBuilder {
	for _, pb := range b.phases {
		if pb.phase.ID == id {
			return pb
		}
	}
	pb := &PhaseBuilder{
		phase:   domain.Phase{ID: id},
		builder: b,
	}
	b.phases = append(b.phases, pb)
	return pb
}

// Build assembles and validates the vignette.
func (b *Builder) Build() (*domain.Vignette, error) {
	v := b.vignette
	v.Phases = make([]domain.Phase, 0, len(b.phases))
	for _, pb := range b.phases {
		v.Phases = append(v.Phases, pb.Build())
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Loader compiles the vignette into a memory loader.
func (b *Builder) Loader() (*memory.Loader, error) {
	v, err := b.Build()
	if err != nil {
		return nil, err
	}
	loader, err := memory.NewFromVignettes(v)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
