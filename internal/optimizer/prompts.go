package optimizer

const mutatePrompt = `You are a Lead Sales Manager optimizing a script for prospects in the %s industry, %s region.

CURRENT PROMPT:
"%s"

CALL TRANSCRIPT:
"%s"

TASK:
The call outcome was: %s.
Identify ONE specific missing instruction or weakness in the current prompt that caused friction.
Rewrite the prompt to include a specific rule to handle this kind of prospect better next time.

CRITICAL: Keep the prompt concise. Only add high-value instructions.

Return ONLY the new full prompt text.`

const simulatePrompt = `%s

Customer says: "%s"

Respond as the sales agent:`

const judgePrompt = `You are evaluating a sales agent's response to a customer objection.

CUSTOMER OBJECTION: "%s"
AGENT RESPONSE: "%s"
EXPECTED APPROACH: "%s"

Evaluate:
1. Does the response address the objection? (yes/no)
2. Is the tone professional and empathetic? (yes/no)
3. Does it align with the expected approach? (yes/no)

Respond with valid JSON matching this schema:
{"addresses_objection": bool, "professional_tone": bool, "aligns_with_target": bool, "overall_score": 0.0-1.0}`
