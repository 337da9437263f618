package agentruntime

import "strings"

// instructionTemplate builds the per-turn system instruction: the persona's
// base instruction text concatenated with the {{emotional_cue}} and
// {{history_cue}} slots filled from session state set immediately before
// invocation (spec §4.5). Deterministic: identical inputs yield identical
// prompt bytes, same contract as the teacher's SystemPrompt.Build and the
// Persona Engine's ComposeEmotionalCue template.
func instructionTemplate(base, emotionalCue, historyCue string) string {
	tmpl := base + "\n\n{{emotional_cue}}\n\n{{history_cue}}"
	return replaceVariables(tmpl, map[string]string{
		"emotional_cue": emotionalCue,
		"history_cue":   historyCue,
	})
}

func replaceVariables(prompt string, vars map[string]string) string {
	result := prompt
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// personaInstruction assembles the static part of a persona's base
// instruction from its quirks/catchphrases/expertise, the way the teacher's
// SystemPrompt.Build concatenates provider header + base prompt + model
// instructions into one string.
func personaInstruction(name, basePersonality string, quirks, catchphrases, expertiseTags []string) string {
	var parts []string
	parts = append(parts, "You are "+name+". "+basePersonality)
	if len(expertiseTags) > 0 {
		parts = append(parts, "Your areas of expertise: "+strings.Join(expertiseTags, ", ")+".")
	}
	if len(quirks) > 0 {
		parts = append(parts, "Personality quirks: "+strings.Join(quirks, "; ")+".")
	}
	if len(catchphrases) > 0 {
		parts = append(parts, "You sometimes use phrases like: "+strings.Join(catchphrases, " / ")+".")
	}
	return strings.Join(parts, "\n")
}
