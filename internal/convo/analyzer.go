package convo

import (
	"context"
	"strings"
)

// Intent labels produced by text analysis.
const (
	IntentGreeting = "greeting"
	IntentGoodbye  = "goodbye"
	IntentInquiry  = "inquiry"
	IntentUnknown  = "unknown"
)

// Analysis is the output of intent classification for one utterance.
type Analysis struct {
	Intent   string
	Entities map[string]string
}

// Analyzer classifies caller utterances. Consumed as a black box so a
// hosted NLU service can replace the heuristic without touching the engine.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// HeuristicAnalyzer is the built-in keyword classifier. It only has to be
// good enough to route the handful of intents the engine special-cases;
// everything else falls through to the generated reply.
type HeuristicAnalyzer struct{}

var (
	greetingWords = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}
	goodbyeWords  = []string{"bye", "goodbye", "see you", "talk later", "hang up", "that's all"}
	inquiryWords  = []string{"interested in", "looking for", "do you have", "tell me about", "price", "property"}
)

func (HeuristicAnalyzer) Analyze(_ context.Context, text string) (Analysis, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case lower == "":
		return Analysis{Intent: IntentUnknown}, nil
	case hasAny(lower, goodbyeWords):
		return Analysis{Intent: IntentGoodbye}, nil
	case hasAny(lower, greetingWords):
		return Analysis{Intent: IntentGreeting}, nil
	case hasAny(lower, inquiryWords):
		return Analysis{Intent: IntentInquiry}, nil
	default:
		return Analysis{Intent: IntentUnknown}, nil
	}
}

// hasAny matches phrases as substrings and single keywords as whole words,
// so "maybe" does not read as "bye" and "this" does not read as "hi".
func hasAny(text string, needles []string) bool {
	var words []string
	for _, n := range needles {
		if strings.Contains(n, " ") {
			if strings.Contains(text, n) {
				return true
			}
			continue
		}
		if words == nil {
			words = strings.FieldsFunc(text, func(r rune) bool {
				return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
			})
		}
		for _, w := range words {
			if w == n {
				return true
			}
		}
	}
	return false
}
