/*
Package dsl provides a fluent Go builder for Parley vignettes.

It lets hosts and tests define scenarios in code instead of YAML, Markdown or
JSON files, with the same validation the file loaders apply.

Example usage:

	b := dsl.New("delayed-results").
		Title("Delayed test results").
		Persona("Dana", "daughter of the patient", "Waited six hours for news.")

	b.Phase("intro").
		Directive("You are worried and short-tempered.").
		Objective("introduced", "Trainee introduces themselves", "my name is").
		When("calm").Requires("introduced").Mood(1).To("explain").
		StallAfter(3, "escalation")

	b.Phase("escalation").Directive("You raise your voice.").Go("cooled", "explain")
	b.Phase("explain").Directive("You listen.")

	loader, err := b.Loader()
*/
package dsl
