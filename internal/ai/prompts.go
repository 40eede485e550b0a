package ai

import (
	"context"
	"fmt"
	"strings"
)

// Entity is a named thing mentioned in an episode.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

const summaryPrompt = `You are an expert podcast summarizer and blog post writer.
I will provide you with the transcript of a podcast episode titled %q.
Your task is to write a comprehensive blog post summary of this episode.

Requirements:
- Structure it like a blog post with a catchy title, introduction, key topics/takeaways, and a conclusion.
- Use Markdown formatting (headers, bullet points, etc.).
- Use double line breaks between paragraphs to ensure clear separation.
- Write the summary in %s.
- Analyze the topics discussed in depth.
- IMPORTANT: Use footnotes to cite the timestamps of important phrases or topics discussed. Use the format [^timestamp] where timestamp is in MM:SS or HH:MM:SS format.
- At the end of the post, list the footnotes in a section called "Timestamp References".

Here is the transcript (with timestamps if available):
%s`

const entitiesPrompt = `Analyze the following podcast transcript and extract the key entities mentioned.
Focus on:
- People (Hosts, Guests, Key figures mentioned)
- Companies / Organizations
- Locations (Cities, Countries, etc.)
- Key Topics / Concepts (e.g. "Artificial Intelligence", "Climate Change")
- News Events

Return a list of entities.
- name: The name of the entity (Title Case, e.g. "United States", "Elon Musk").
- type: The category (e.g. "Person", "Location", "Topic", "Company").

Transcript:
%s`

const entitiesSchema = `{
  "type": "OBJECT",
  "properties": {
    "entities": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {"name": {"type": "STRING"}, "type": {"type": "STRING"}},
        "required": ["name", "type"]
      }
    }
  },
  "required": ["entities"]
}`

const topicsPrompt = `Analyze the following podcast transcript and extract the key distinct topics discussed.
These topics will be used to group episodes together.

Focus on:
- Major News Events (e.g., "Hurricane Milton")
- Specific Concepts (e.g., "Generative AI", "Universal Basic Income")
- Broad but distinct themes.

Avoid:
- Generic terms like "Podcast", "Interview", "Introduction".
- Too granular details that wouldn't likely appear in other episodes.

IMPORTANT: Generate the topics in the following language: %s.

Return a list of topics (max 5-8 topics).

Transcript:
%s`

const topicsSchema = `{
  "type": "OBJECT",
  "properties": {"topics": {"type": "ARRAY", "items": {"type": "STRING"}}},
  "required": ["topics"]
}`

// Summarize writes a markdown blog-post style summary of a transcript.
func (c *GeminiClient) Summarize(ctx context.Context, title, language, transcript string) (string, error) {
	text, err := c.generate(ctx, fmt.Sprintf(summaryPrompt, title, language, transcript), generationConfig{
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty summary")
	}
	return text, nil
}

// ExtractEntities lists the people, organizations, places and concepts in a transcript.
func (c *GeminiClient) ExtractEntities(ctx context.Context, transcript string) ([]Entity, error) {
	var out struct {
		Entities []Entity `json:"entities"`
	}
	if err := c.generateJSON(ctx, fmt.Sprintf(entitiesPrompt, transcript), entitiesSchema, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// ExtractTopics lists the distinct topics of a transcript, written in language.
func (c *GeminiClient) ExtractTopics(ctx context.Context, transcript, language string) ([]string, error) {
	var out struct {
		Topics []string `json:"topics"`
	}
	if err := c.generateJSON(ctx, fmt.Sprintf(topicsPrompt, language, transcript), topicsSchema, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}
