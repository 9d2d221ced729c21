// Package responses holds the bot's canned user-facing messages in Arabic
// and English, overridable from a YAML file.
package responses

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const genericFallback = "عذراً، حدث خطأ غير متوقع"

// catalog layout: category -> key -> language -> text.
type messages map[string]map[string]map[string]string

type Catalog struct {
	messages messages
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{messages: defaultMessages()}
}

// Load reads a YAML override file and merges it over the defaults. Entries
// the file does not mention keep their built-in text.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses file: %w", err)
	}
	var override messages
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse responses file: %w", err)
	}

	merged := defaultMessages()
	for category, keys := range override {
		if merged[category] == nil {
			merged[category] = make(map[string]map[string]string)
		}
		for key, variants := range keys {
			if merged[category][key] == nil {
				merged[category][key] = make(map[string]string)
			}
			for lang, text := range variants {
				merged[category][key][lang] = text
			}
		}
	}
	return &Catalog{messages: merged}, nil
}

// Get returns the message for category/key in the requested language,
// falling back ar then en, then a generic Arabic apology.
func (c *Catalog) Get(category, key, language string) string {
	variants := c.messages[category][key]
	if text, ok := variants[language]; ok {
		return text
	}
	if text, ok := variants["ar"]; ok {
		return text
	}
	if text, ok := variants["en"]; ok {
		return text
	}
	return genericFallback
}

func (c *Catalog) Error(key, language string) string {
	return c.Get("error_messages", key, language)
}

func (c *Catalog) Discourse(key, language string) string {
	return c.Get("discourse_messages", key, language)
}

func (c *Catalog) System(key, language string) string {
	return c.Get("system_messages", key, language)
}

func defaultMessages() messages {
	return messages{
		"error_messages": {
			"no_results_found": {
				"ar": "عذراً، لم أتمكن من العثور على موضوعات ذات صلة بسؤالك. يرجى المحاولة بصيغة مختلفة أو زيارة المنتدى مباشرة: https://discourse.aosus.org",
				"en": "Sorry, I couldn't find any relevant topics for your question. Please try rephrasing your query or visit the forum directly: https://discourse.aosus.org",
			},
			"processing_error": {
				"ar": "عذراً، حدث خطأ أثناء معالجة سؤالك. يرجى المحاولة مرة أخرى أو زيارة المنتدى مباشرة: https://discourse.aosus.org",
				"en": "Sorry, an error occurred while processing your question. Please try again later or visit the forum directly: https://discourse.aosus.org",
			},
			"search_error": {
				"ar": "عذراً، حدث خطأ أثناء البحث. يرجى المحاولة مرة أخرى أو زيارة المنتدى مباشرة: https://discourse.aosus.org",
				"en": "Sorry, an error occurred while searching for an answer. Please try again later or visit the forum directly: https://discourse.aosus.org",
			},
			"fallback_error": {
				"ar": "عذراً، لم أتمكن من معالجة سؤالك. يرجى المحاولة مرة أخرى أو زيارة المنتدى مباشرة: https://discourse.aosus.org",
				"en": "Sorry, I couldn't process your question. Please try again or visit the forum directly: https://discourse.aosus.org",
			},
		},
		"discourse_messages": {
			"no_results": {
				"ar": "لم يتم العثور على موضوعات ذات صلة.",
				"en": "No relevant topics found.",
			},
			"untitled_post": {
				"ar": "منشور بدون عنوان",
				"en": "Untitled post",
			},
			"untitled_topic": {
				"ar": "موضوع بدون عنوان",
				"en": "Untitled topic",
			},
			"default_excerpt": {
				"ar": "موضوع في مجتمع أسس",
				"en": "Topic in Aosus community",
			},
		},
		"system_messages": {
			"perfect_match": {
				"ar": "وجدت تطابقاً مثالياً لسؤالك:",
				"en": "I found a perfect match for your question:",
			},
			"closest_match": {
				"ar": "إليك أقرب موضوع ذي صلة وجدته:",
				"en": "Here's the closest relevant topic I found:",
			},
		},
	}
}
