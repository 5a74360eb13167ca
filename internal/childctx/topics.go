package childctx

import (
	"strings"
	"unicode"

	"github.com/suricare/suricare/internal/models"
)

// topicWords maps each dimension to the query words that select it.
var topicWords = map[models.Dimension][]string{
	models.DimensionSleep: {
		"sleep", "sleeping", "slept", "nap", "napping", "bedtime", "bed", "night", "nighttime",
		"wake", "waking", "woke", "awake", "rest", "tired", "insomnia", "dream", "nightmare",
	},
	models.DimensionNutrition: {
		"eat", "eating", "ate", "food", "meal", "feed", "feeding", "fed", "nutrition", "appetite",
		"hungry", "breakfast", "lunch", "dinner", "snack", "milk", "formula", "breastfeeding",
		"diet", "drink", "drinking", "picky", "consumption", "solid", "vegetable", "fruit",
	},
	models.DimensionSymptoms: {
		"symptom", "sick", "ill", "illness", "fever", "temperature", "cough", "coughing", "cold",
		"rash", "vomit", "vomiting", "diarrhea", "diarrhoea", "pain", "hurt", "ache", "sneeze",
		"sneezing", "runny", "congestion", "itchy", "itching", "unwell", "crying", "fussy",
	},
	models.DimensionGrowth: {
		"growth", "grow", "growing", "weight", "height", "tall", "taller", "heavy", "heavier",
		"size", "length", "head", "circumference", "percentile", "gain", "gaining", "measurement",
		"kg", "cm",
	},
}

// generalWords select every dimension.
var generalWords = []string{
	"overall", "pattern", "summary", "week", "weekly", "trend", "health", "doing", "progress",
	"update", "everything", "recent", "lately",
}

var vocabulary = buildVocabulary()

func buildVocabulary() map[string][]models.Dimension {
	v := make(map[string][]models.Dimension)
	for _, dim := range models.Dimensions {
		for _, w := range topicWords[dim] {
			v[w] = append(v[w], dim)
		}
	}
	for _, w := range generalWords {
		v[w] = models.Dimensions
	}
	return v
}

// Topics is the set of dimensions a query concerns.
type Topics map[models.Dimension]bool

// Has reports whether dim is selected.
func (t Topics) Has(dim models.Dimension) bool { return t[dim] }

// All reports whether every dimension is selected.
func (t Topics) All() bool {
	for _, dim := range models.Dimensions {
		if !t[dim] {
			return false
		}
	}
	return true
}

// ClassifyQuery returns the dimensions a caregiver query plausibly concerns. Matching is
// by whole word, case-insensitive, with a trailing plural "s" ignored.
func ClassifyQuery(query string) Topics {
	topics := Topics{}
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		dims, ok := vocabulary[w]
		if !ok && len(w) > 3 && strings.HasSuffix(w, "s") {
			dims, ok = vocabulary[strings.TrimSuffix(w, "s")]
		}
		if !ok {
			continue
		}
		for _, dim := range dims {
			topics[dim] = true
		}
	}
	return topics
}
