package prompt

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
)

// Mode controls what the Guard does with a detection.
type Mode string

const (
	// ModeOff disables inspection.
	ModeOff Mode = "off"
	// ModeWarn logs detections and leaves the text untouched.
	ModeWarn Mode = "warn"
	// ModeStrip logs detections and replaces the matched spans.
	ModeStrip Mode = "strip"
)

// Placeholder replaces stripped spans.
const Placeholder = "[REMOVED]"

// InjectionType classifies a detection.
type InjectionType string

const (
	InjectionTypeInstructionOverride InjectionType = "instruction_override"
	InjectionTypeSystemPromptLeak    InjectionType = "system_prompt_leak"
	InjectionTypeRoleManipulation    InjectionType = "role_manipulation"
	InjectionTypeDelimiterAttack     InjectionType = "delimiter_attack"
)

// Detection is a single suspicious span.
type Detection struct {
	Type     InjectionType
	StartPos int
	EndPos   int
}

type patternSet struct {
	kind     InjectionType
	patterns []*regexp.Regexp
}

var patternSets = []patternSet{
	{
		kind: InjectionTypeInstructionOverride,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier|system)\s+(instructions?|prompts?|rules|commands?)`),
			regexp.MustCompile(`(?i)forget\s+(everything|all\s+previous)`),
			regexp.MustCompile(`(?i)(ignora|dimentica|trascura)\s+(tutte\s+)?(le\s+)?(istruzioni|regole|indicazioni)(\s+(precedenti|sopra|di\s+sistema))?`),
			regexp.MustCompile(`(?i)(nuove|diverse)\s+istruzioni\s*:`),
		},
	},
	{
		kind: InjectionTypeSystemPromptLeak,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(show|reveal|print|repeat)\s+(me\s+)?(your|the)\s+(system|original|hidden|initial)\s+(prompt|instructions?)`),
			regexp.MustCompile(`(?i)(mostra|rivela|ripeti|stampa)(mi)?\s+(il\s+|le\s+)?(tuo\s+|tue\s+)?(prompt|istruzioni)\s+(di\s+sistema|iniziali|originali|nascoste)`),
		},
	},
	{
		kind: InjectionTypeRoleManipulation,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)from\s+now\s+on,?\s+you\s+(are|will)`),
			regexp.MustCompile(`(?i)pretend\s+(to\s+)?be\s+(a|an)\b`),
			regexp.MustCompile(`(?i)(da\s+ora\s+in\s+poi|d'ora\s+in\s+poi),?\s+(sei|tu\s+sei|devi)`),
			regexp.MustCompile(`(?i)fingi\s+di\s+essere`),
		},
	},
	{
		kind: InjectionTypeDelimiterAttack,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\[/?(SYSTEM|USER|ASSISTANT)\]`),
			regexp.MustCompile(`<\|(system|user|assistant|end|im_start|im_end)\|>`),
			regexp.MustCompile(`(?i)###\s*(SYSTEM|USER|ASSISTANT|INSTRUCTION)`),
			regexp.MustCompile(`(?i)<\s*/?\s*contesto\s*>`),
		},
	},
}

// Detect returns every suspicious span in text, ordered by position.
func Detect(text string) []Detection {
	var detections []Detection
	for _, set := range patternSets {
		for _, pattern := range set.patterns {
			for _, match := range pattern.FindAllStringIndex(text, -1) {
				detections = append(detections, Detection{
					Type:     set.kind,
					StartPos: match[0],
					EndPos:   match[1],
				})
			}
		}
	}
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].StartPos < detections[j].StartPos
	})
	return detections
}

// Strip replaces every detected span with Placeholder. Overlapping spans
// are merged first.
func Strip(text string, detections []Detection) string {
	if len(detections) == 0 {
		return text
	}

	spans := make([]Detection, len(detections))
	copy(spans, detections)
	sort.Slice(spans, func(i, j int) bool { return spans[i].StartPos < spans[j].StartPos })

	merged := []Detection{spans[0]}
	for _, d := range spans[1:] {
		last := &merged[len(merged)-1]
		if d.StartPos <= last.EndPos {
			if d.EndPos > last.EndPos {
				last.EndPos = d.EndPos
			}
			continue
		}
		merged = append(merged, d)
	}

	result := text
	for i := len(merged) - 1; i >= 0; i-- {
		d := merged[i]
		result = result[:d.StartPos] + Placeholder + result[d.EndPos:]
	}
	return result
}

// Guard inspects untrusted text before it reaches the generator. It never
// rejects input.
type Guard struct {
	mode   Mode
	logger *zap.Logger
}

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOff, ModeWarn, ModeStrip:
		return m, nil
	case "":
		return ModeWarn, nil
	default:
		return "", fmt.Errorf("unsupported prompt guard mode %q", s)
	}
}

// NewGuard creates a Guard.
func NewGuard(mode Mode, logger *zap.Logger) *Guard {
	return &Guard{mode: mode, logger: logger}
}

// Mode returns the configured mode.
func (g *Guard) Mode() Mode {
	return g.mode
}

// Inspect returns the text to forward. source names where the text came from
// (question, passage id) for the log line.
func (g *Guard) Inspect(ctx context.Context, source, text string) string {
	if g == nil || g.mode == ModeOff || text == "" {
		return text
	}

	detections := Detect(text)
	if len(detections) == 0 {
		return text
	}

	types := make([]string, 0, len(detections))
	seen := make(map[InjectionType]bool)
	for _, d := range detections {
		if !seen[d.Type] {
			seen[d.Type] = true
			types = append(types, string(d.Type))
		}
	}

	g.logger.Warn("possible prompt injection",
		zap.String("source", source),
		zap.Strings("types", types),
		zap.Int("detections", len(detections)),
		zap.String("mode", string(g.mode)))

	if g.mode == ModeStrip {
		return Strip(text, detections)
	}
	return text
}
