package extraction

import (
	"fmt"
	"strings"
)

const classifySystemPrompt = `You are an expert analyzing questions in chats.`

const classifyPromptTemplate = `In the following chat history, decide whether the latest [User] input is a
new question, complementary information for a previous question, or not a
question at all.

Summarize the conversation so far as a single standalone question.

Answer in valid JSON only, with this shape:

{
"question": "",
"reasoning": "",
"type": ""
}

"type" must be one of: "new_question", "complement", "no_question".

Here is a chat history: %s`

const selectCubeSystemPrompt = `You are an expert data analyst.`

const selectCubePromptTemplate = `You are given a question from a user, and a list of tables you are able
to query. Select the most relevant table that could contain the data to
answer the user's question:

---------------------
%s
---------------------

Your response should be in JSON format with:

- "explanation": one to two sentence comment explaining why the chosen table is relevant, double checking it exists in the list provided before.
- "table": the name of the selected table, the most relevant one to answer the question. Use "" if no table fits.

Response format:

{
    "explanation": "",
    "table": ""
}

Here is the question: %s`

const componentsSystemPrompt = `You're a data scientist working with OLAP cubes. Given dimensions and
measures in JSON format, identify the drilldowns, measures, and filters
for querying the cube via API.`

const componentsPromptTemplate = `**Cube metadata:**

%s

Your response should be in JSON format with:

- "drilldowns": list of specific levels within each dimension for drilldowns (ONLY the level names).
- "measures": list of relevant measures.
- "filters": list of filters in 'level = filtered_value' format.
- "explanation": one to two sentence comment explaining why the chosen drilldowns and cuts are relevant, double checking that the levels exist in the metadata given above.

Response format:

{
    "drilldowns": "",
    "measures": "",
    "filters": "",
    "explanation": ""
}

Provide only the required lists, and adhere to these rules:

- Apply filters only to the most relevant or granular level within the same parent dimension.
- For year or month ranges, specify each bound separately (e.g. 'Year >= 2010', 'Year <= 2015').
- Double check that the drilldowns and cuts contain ONLY the level names, and not the dimension.
- For filters, just write the general name, as it will be matched to its ID later on.

This is my question:
%s`

func classifyPrompt(transcript string) string {
	return fmt.Sprintf(classifyPromptTemplate, transcript)
}

func selectCubePrompt(schemas, question string) string {
	return fmt.Sprintf(selectCubePromptTemplate, schemas, question)
}

func componentsPrompt(columns, question string) string {
	return fmt.Sprintf(componentsPromptTemplate, columns, question)
}

// RenderTranscript renders an ordered conversation as the transcript
// shape the classification prompt expects:
// " [AI]:...; [User]:...;[.]".
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString(";")
		}
		if t.FromUser {
			b.WriteString(" [User]:")
		} else {
			b.WriteString(" [AI]:")
		}
		b.WriteString(t.Content)
	}
	b.WriteString("[.]")
	return b.String()
}

// Turn is one utterance of the rendered conversation.
type Turn struct {
	FromUser bool   `json:"from_user"`
	Content  string `json:"content"`
}
