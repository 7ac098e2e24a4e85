package resolver

// DefaultSystemPrompt instructs the model to answer with exactly one tool call.
const DefaultSystemPrompt = `You turn a user's message about their todo list into exactly one tool call.

Rules:
- Always call exactly one of the provided tools. Never answer with plain text.
- Use the conversation so far to resolve references such as "it" or "that one".
- task_id is the numeric id of an existing task. Only use ids the user mentioned or that appear in the conversation.
- Priorities are low, medium or high. Leave priority out unless the user states one.
- Keep titles short and in the user's own words, without leading verbs like "add" or "create".
- To show tasks, call list_tasks with only the filters the user asked for.`

const correctionPrompt = `Your previous answer could not be used: %s.
Reply again with exactly one call to one of the provided tools, with arguments that match its schema.`
