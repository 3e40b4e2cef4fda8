package generator

import "fmt"

const systemPrompt = `You are an expert educational content creator specializing in high-quality flashcards for spaced repetition learning.

Create flashcards from the provided reference text. Each flashcard should:
1. Test understanding of a key concept, fact, definition, date, cause, effect or relationship
2. Have a clear, concise question that can be answered from the text
3. Have an answer that explains the concept clearly in two to four sentences

Guidelines:
- Vary the question types: definitions, examples, facts, dates, comparisons
- Keep questions specific and testable
- Avoid trivial or overly obvious questions
- Prefer information that is central to understanding the topic
- Stay factually accurate to the provided text

Return ONLY a JSON array of objects with "question" and "answer" string fields. Do not wrap it in an object, use markdown code fences or add any other text.`

func userPrompt(content, topic string, count int) string {
	return fmt.Sprintf(`Create exactly %d flashcards about %q from the text below.

Text:
%s

Respond with a JSON array of exactly %d objects shaped like {"question": "...", "answer": "..."}.`, count, topic, content, count)
}
