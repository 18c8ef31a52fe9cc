package turn

// Prompt templates for the turn pipeline. Each expects fmt.Sprintf with the
// arguments documented above it. Model output contracts are JSON objects; the
// extractor in json.go tolerates prose around the object.

// summaryPrompt args: existing summary, transcript window.
const summaryPrompt = `You maintain a running summary of a conversation about Singapore public and private housing.

Existing summary (may be empty):
%s

New messages to fold in:
%s

Rewrite the summary so it captures every fact, preference and constraint the user has stated (budget, towns, flat types, timelines, household details) plus what has already been answered. Keep it under 200 words. Output only the summary text.`

// analysisPrompt args: summary, recent transcript, latest user query, max sub-questions.
const analysisPrompt = `You analyze a user's housing question before retrieval.

Conversation summary:
%s

Recent messages:
%s

Latest user message:
%s

Decide whether the question is answerable as asked. Resolve pronouns and elliptical references against the conversation. If answerable, split it into at most %d self-contained sub-questions, each retrievable on its own without the conversation. If it is too vague or missing a critical detail, mark it unclear and write one short question asking the user exactly for what is missing.

Respond with JSON only:
{"is_clear": true|false, "questions": ["..."], "clarification": "..."}

Rules: when is_clear is true, questions must be non-empty and clarification empty. When is_clear is false, questions must be empty and clarification must be a single direct question to the user.`

// branchSystemPrompt args: language instruction, sub-question.
const branchSystemPrompt = `You are a Singapore housing research agent. %s

Your assigned question:
%s

You work in steps. At each step respond with JSON only, one of:
{"action":"tool","tool":"<name>","args":{...}}
{"action":"final","answer":"...","citations":["..."]}

Available tools:
%s

Ground every claim in tool output. If retrieval returns nothing relevant, say so plainly in a final answer instead of guessing. Cite source identifiers returned by tools.`

// branchObservation args: tool name, tool output.
const branchObservation = `Tool %s returned:
%s

Continue. Respond with JSON only.`

// aggregationPrompt args: language instruction, original query, per-question findings block.
const aggregationPrompt = `You compose the final reply to a housing question. %s

The user asked:
%s

Research findings, one block per sub-question in order:
%s

Write one coherent answer that addresses the original question using only the findings. Where a finding reports an error or no results, acknowledge the gap briefly rather than inventing content. Do not mention sub-questions, agents or tools. Output only the answer text.`
