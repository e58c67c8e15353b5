package nl2sql

import (
	"fmt"
	"strings"
)

const generationRules = "Rules:\n" +
	"- Return ONLY the SQL query. No markdown, no explanation.\n" +
	"- Generate a single SELECT statement; never modify data or schema.\n" +
	"- Use only tables and columns present in the schema.\n" +
	"- Prefer explicit column names when the question asks for specific fields."

func ScopedPrompt(question, schema, table string) string {
	return fmt.Sprintf(
		"You are a SQL expert. Translate the question into a SQL query for the database described below.\n\n"+
			"Database schema:\n%s\n\n"+
			"Target table: %s\n"+
			"The query must read from the %q table. Only reference other tables when the question cannot be answered from %q alone.\n\n"+
			"Question:\n%s\n\n%s",
		strings.TrimSpace(schema),
		table,
		table,
		table,
		strings.TrimSpace(question),
		generationRules,
	)
}

func OpenPrompt(question, schema string) string {
	return fmt.Sprintf(
		"You are a SQL expert. Translate the question into a SQL query for the database described below.\n\n"+
			"Database schema:\n%s\n\n"+
			"No target table is given: infer which tables hold the answer and JOIN them as needed.\n\n"+
			"Question:\n%s\n\n%s",
		strings.TrimSpace(schema),
		strings.TrimSpace(question),
		generationRules,
	)
}

func AnswerPrompt(question, sql, resultText string) string {
	return fmt.Sprintf(
		"A user asked a question about their data. The SQL query below was executed to answer it.\n\n"+
			"Question:\n%s\n\n"+
			"SQL query:\n%s\n\n"+
			"Query result:\n%s\n\n"+
			"Answer the question concisely in natural language, using the same language as the question. "+
			"The result may be shaped like an array, a hash, or a list of records: restate it in plain human phrasing "+
			"and do not mention SQL, column names, or data structures unless the user asked for them.",
		strings.TrimSpace(question),
		strings.TrimSpace(sql),
		resultText,
	)
}
