package usecase

import "strings"

// Built-in prompt templates. The summary and Q&A user templates can be
// overridden through the prompt_summary / prompt_qa settings; placeholders
// use {name} syntax and unknown placeholders stay literal.

const sectionSummarySystem = `You are an expert document analyst. Your task is to create concise, accurate summaries of document sections.

Rules:
- Extract only the most important information
- Preserve specific numbers, dates, percentages, and names
- Keep summary to 3-5 sentences
- Be factual, without interpretations or opinions
- Write in the same language as the source text`

const sectionSummaryUser = `Summarize this section from a document.

## Section Title
{section_title}

## Section Content
{section_content}

Write a concise summary (3-5 sentences) capturing the main topic, key facts and numbers, and any decisions or conclusions.

Summary:`

const finalSummarySystem = `You are an expert document analyst. Your task is to create a comprehensive summary from multiple section summaries.

Rules:
- Create a unified, coherent narrative
- Do not repeat information
- Prioritize the most important points
- Write in the same language as the source text`

const finalSummaryUser = `Create a comprehensive document summary from these section summaries.

## Document Title
{document_title}

## Document Type
{document_type}

## Section Summaries
{section_summaries}

Write an overview, the key points, important data worth remembering, and the main conclusions.

Summary:`

const shortDocSummarySystem = `You are an expert document analyst. Create clear, accurate, and comprehensive summaries.

Rules:
- Focus on main ideas and key findings
- Preserve critical numbers, dates, names
- Be objective and factual
- Write in the same language as the source text`

const shortDocSummaryUser = `Summarize this document.

## Document Title
{document_title}

## Document Type
{document_type}

## Document Content
{document_content}

Write an overview, the key points, important data worth remembering, and the main conclusions.

Summary:`

const qaGenerationSystem = `You generate question-answer pairs that a reader might ask about a document. Always respond with valid JSON.`

const qaGenerationUser = `Generate {num_questions} diverse question-answer pairs about this document. Cover different question types: factual, overview, procedural, comparison, reasoning.

## Document Title
{document_title}

## Document Content
{document_content}

Respond with JSON only:
{"qa_pairs": [{"question": "...", "answer": "...", "type": "factual"}]}`

const evaluatorSystem = `You are an evaluation agent. Always respond with valid JSON.`

const evaluatorUser = `You are evaluating whether retrieved information is sufficient to answer a query.

Query: {query}

Retrieved Information:
{context}

Choose ONE action:
1. "proceed" - information is sufficient to answer the query
2. "refine_query" - information is insufficient, suggest a refined query
3. "expand_search" - information is partially relevant, broaden the search

Respond in JSON:
{"decision": "proceed|refine_query|expand_search", "confidence": 0.0, "reasoning": "brief explanation", "refined_query": "new query if refine_query, else null"}`

const answerSystem = `You are a helpful assistant that answers questions based on provided context. Always cite your sources using [1], [2], etc.`

const answerUser = `Answer the question based on the provided context. Include citation numbers [1], [2], etc. when referencing specific information. If the context is insufficient, say so directly.

Question: {query}

Context:
{context}

Answer (with citations):`

// renderTemplate substitutes {name} placeholders. Unknown placeholders are
// left as-is so operator-edited templates fail soft.
func renderTemplate(tpl string, vars map[string]string) string {
	out := tpl
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
