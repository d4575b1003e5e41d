package extractor

import "fmt"

const systemPrompt = `You are a fisheries regulation analyst. You convert the free-form
regulation text for a single water body into structured JSON.

Rules:
- Emit one species entry per regulated species mentioned in the text.
- regulationType is one of: daily-limit, possession-limit, size-limit,
  protected-slot, catch-and-release, seasonal, combined. Use "combined"
  when one species carries multiple limit types.
- Sizes are in inches. Counts are whole numbers.
- Put slot descriptions like "all fish 20-26 inches must be released"
  in protectedSlot, season dates in seasonInfo.
- Text that applies to the whole water body rather than one species
  goes in generalNotes.
- Set isExperimental when the text marks the water as experimental or
  under special evaluation.
- If the text contains no actionable regulation (pure boilerplate,
  cross-references only), return {"species": []} with empty notes.
- Return only JSON. No commentary.`

// entryPrompt builds the user message for one lake entry.
func entryPrompt(name, locality, rawText string) string {
	loc := locality
	if loc == "" {
		loc = "unknown"
	}
	return fmt.Sprintf("Water body: %s\nCounty: %s\n\nRegulation text:\n%s", name, loc, rawText)
}

// repairPrompt asks the backend to fix output that failed parsing or
// schema validation.
func repairPrompt(lastOutput string, issue error) string {
	if len(lastOutput) > 8000 {
		lastOutput = lastOutput[:8000] + "\n...[truncated]"
	}
	return fmt.Sprintf(`Your previous output could not be used.

Previous output:
%s

Problem:
%v

Return ONLY valid JSON conforming to the required schema. No markdown, no commentary.`, lastOutput, issue)
}
