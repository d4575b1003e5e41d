package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fisheries-data/creel/internal/regs"
)

// regulationSchema is the JSON schema the backend's per-entry response
// must conform to. Validated locally before decoding.
const regulationSchema = `{
  "type": "object",
  "properties": {
    "species": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "regulationType": {"type": "string"},
          "dailyLimit": {"type": ["integer", "string", "null"]},
          "possessionLimit": {"type": ["integer", "string", "null"]},
          "minimumSize": {"type": ["number", "string", "null"]},
          "maximumSize": {"type": ["number", "string", "null"]},
          "protectedSlot": {"type": ["string", "null"]},
          "seasonInfo": {"type": ["string", "null"]},
          "catchAndRelease": {"type": ["boolean", "null"]},
          "notes": {"type": ["string", "null"]}
        },
        "required": ["name", "regulationType"]
      }
    },
    "generalNotes": {"type": ["string", "null"]},
    "isExperimental": {"type": ["boolean", "null"]},
    "confidence": {"type": ["number", "null"]}
  },
  "required": ["species"]
}`

// aiResponse is the backend's per-entry response shape.
type aiResponse struct {
	Species        []aiSpeciesRule `json:"species"`
	GeneralNotes   string          `json:"generalNotes"`
	IsExperimental bool            `json:"isExperimental"`
	Confidence     *float64        `json:"confidence"`
}

type aiSpeciesRule struct {
	Name            string    `json:"name"`
	RegulationType  string    `json:"regulationType"`
	DailyLimit      flexInt   `json:"dailyLimit"`
	PossessionLimit flexInt   `json:"possessionLimit"`
	MinimumSize     flexFloat `json:"minimumSize"`
	MaximumSize     flexFloat `json:"maximumSize"`
	ProtectedSlot   string    `json:"protectedSlot"`
	SeasonInfo      string    `json:"seasonInfo"`
	CatchAndRelease bool      `json:"catchAndRelease"`
	Notes           string    `json:"notes"`
}

// flexInt decodes integers that models sometimes return as strings
// ("4") or floats (4.0).
type flexInt struct {
	Value *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a numeric value: %s", string(b))
	}
	n := int(v)
	f.Value = &n
	return nil
}

// flexFloat decodes numbers that models sometimes return as strings,
// optionally with a trailing unit ("15 inches").
type flexFloat struct {
	Value *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a numeric value: %s", string(b))
	}
	f.Value = &v
	return nil
}

// kindFromString maps a backend regulationType string onto a
// RegulationKind, tolerating hyphen/underscore/camel variants.
func kindFromString(s string) (regs.RegulationKind, bool) {
	key := strings.ToLower(s)
	for _, ch := range []string{"-", "_", " "} {
		key = strings.ReplaceAll(key, ch, "")
	}
	switch key {
	case "dailylimit":
		return regs.KindDailyLimit, true
	case "possessionlimit":
		return regs.KindPossessionLimit, true
	case "sizelimit":
		return regs.KindSizeLimit, true
	case "protectedslot", "slotlimit":
		return regs.KindProtectedSlot, true
	case "catchandrelease":
		return regs.KindCatchAndRelease, true
	case "seasonal", "season":
		return regs.KindSeasonal, true
	case "combined":
		return regs.KindCombined, true
	}
	return "", false
}

// decodeResponse converts validated backend JSON into the domain form.
// Returns warnings for rules it had to coerce or drop.
func decodeResponse(raw json.RawMessage, name, locality string, chunkIndex int) (*regs.ExtractedRegulation, []string, error) {
	var resp aiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	var warnings []string
	reg := &regs.ExtractedRegulation{
		WaterBody:    regs.TitleCaseName(name),
		Locality:     regs.CollapseWhitespace(locality),
		GeneralNotes: regs.CollapseWhitespace(resp.GeneralNotes),
		Experimental: resp.IsExperimental,
		SourceChunk:  chunkIndex,
	}

	for _, sp := range resp.Species {
		species := regs.CollapseWhitespace(sp.Name)
		if species == "" {
			warnings = append(warnings, fmt.Sprintf("%s: dropped species rule with empty name", name))
			continue
		}
		kind, ok := kindFromString(sp.RegulationType)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: unrecognized regulation type %q for %s, treating as combined", name, sp.RegulationType, species))
			kind = regs.KindCombined
		}
		reg.Rules = append(reg.Rules, regs.SpeciesRule{
			Species:         species,
			Kind:            kind,
			DailyLimit:      sp.DailyLimit.Value,
			PossessionLimit: sp.PossessionLimit.Value,
			MinimumSize:     sp.MinimumSize.Value,
			MaximumSize:     sp.MaximumSize.Value,
			ProtectedSlot:   regs.CollapseWhitespace(sp.ProtectedSlot),
			SeasonInfo:      regs.CollapseWhitespace(sp.SeasonInfo),
			CatchAndRelease: sp.CatchAndRelease,
			Notes:           regs.CollapseWhitespace(sp.Notes),
		})
	}

	if resp.Confidence != nil {
		reg.Confidence = *resp.Confidence
	}

	return reg, warnings, nil
}
