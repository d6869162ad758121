package extractor

const classifyPrompt = `You are reviewing a recorded sales call to decide how it ended.

Transcript:
---
%s
---

Decide whether the salesperson closed the deal or moved the prospect forward. Signals of a win:
- the prospect agreed to a concrete next step (demo, meeting, purchase)
- the prospect expressed clear interest or commitment
- the call ended positively with action items

Respond with valid JSON matching this schema:
{"outcome": "CLOSED_DEAL" | "LOST_DEAL", "confidence": 0.0-1.0, "reason": "string"}`

const extractionPrompt = `You are Refinery, a judge that distills sales calls into reusable lessons.

Read the call below and find its pivot point:
- OBJECTION: the main concern or pushback the customer raised
- REBUTTAL: what the salesperson said to resolve it (verbatim or close paraphrase)
- QUALITY_SCORE: 0.0-1.0, how well the rebuttal actually addressed the objection

Transcript:
---
%s
---

Respond with valid JSON matching this schema:
{"objection": "string", "rebuttal": "string", "quality_score": 0.0-1.0}

Return ONLY the JSON object, no markdown fences or other text.`
