package rag

import (
	"fmt"

	"github.com/BarAvidan1996/eilam-sub000/internal/language"
	"github.com/BarAvidan1996/eilam-sub000/internal/storage/models"
)

type templates struct {
	grounded    string
	web         string
	general     string
	provenance  string
	disclaimer  string
	apology     string
	aiSource    string
	contextHead string
	question    string
}

var prompts = map[language.Code]templates{
	language.English: {
		grounded: `You are Eilam, a civil-defense emergency preparedness assistant.
Answer ONLY from the official documents in the context below.
If the context does not contain the answer, reply exactly: "No answer found in the official documents."
Answer in English. Be concise, practical and precise; keep numbers and instructions exactly as written.`,
		web: `You are Eilam, a civil-defense emergency preparedness assistant.
Answer the question using ONLY the web search results below. Prefer official sources such as the Home Front Command.
If the results disagree, say so. Answer in English, concisely.`,
		general: `You are Eilam, a civil-defense emergency preparedness assistant.
No official documents are available for this question. Answer from your general knowledge, cautiously.
Never invent official instructions, phone numbers or deadlines. Answer in English, concisely.`,
		provenance:  "Note: this answer is based on internet sources, not official documents.",
		disclaimer:  "This answer is based on general knowledge and is not grounded in official civil-defense material. Always follow Home Front Command instructions.",
		apology:     "Sorry, I couldn't process your question right now. Please try again later. In an emergency, follow Home Front Command instructions.",
		aiSource:    "AI general knowledge",
		contextHead: "Context:",
		question:    "Question:",
	},
	language.Hebrew: {
		grounded: `אתה עילם, עוזר היערכות לחירום בתחום ההתגוננות האזרחית.
ענה אך ורק על סמך המסמכים הרשמיים שבהקשר שלהלן.
אם ההקשר אינו מכיל את התשובה, השב בדיוק: "לא נמצאה תשובה במסמכים הרשמיים."
ענה בעברית, בקצרה ובאופן מעשי, ושמור על מספרים והנחיות כפי שנכתבו.`,
		web: `אתה עילם, עוזר היערכות לחירום בתחום ההתגוננות האזרחית.
ענה על השאלה אך ורק על סמך תוצאות החיפוש שלהלן, והעדף מקורות רשמיים כמו פיקוד העורף.
אם התוצאות סותרות זו את זו, ציין זאת. ענה בעברית ובקצרה.`,
		general: `אתה עילם, עוזר היערכות לחירום בתחום ההתגוננות האזרחית.
אין מסמכים רשמיים זמינים לשאלה זו. ענה בזהירות מתוך הידע הכללי שלך.
אל תמציא הנחיות רשמיות, מספרי טלפון או מועדים. ענה בעברית ובקצרה.`,
		provenance:  "שים לב: תשובה זו מבוססת על מקורות מהאינטרנט ולא על מסמכים רשמיים.",
		disclaimer:  "תשובה זו מבוססת על ידע כללי ואינה מבוססת על מסמכים רשמיים של פיקוד העורף. יש לפעול תמיד לפי הנחיות פיקוד העורף.",
		apology:     "מצטערים, לא הצלחנו לעבד את השאלה כרגע. נסו שוב מאוחר יותר, ובמקרה חירום פעלו לפי הנחיות פיקוד העורף.",
		aiSource:    "ידע כללי (AI)",
		contextHead: "הקשר:",
		question:    "שאלה:",
	},
}

func templatesFor(lang language.Code) templates {
	if t, ok := prompts[lang]; ok {
		return t
	}
	return prompts[language.English]
}

func groundedPrompt(lang language.Code, question, context string) (string, string) {
	t := templatesFor(lang)
	return t.grounded, fmt.Sprintf("%s\n%s\n\n%s %s", t.contextHead, context, t.question, question)
}

func webPrompt(lang language.Code, question, context string) (string, string) {
	t := templatesFor(lang)
	return t.web, fmt.Sprintf("%s\n%s\n\n%s %s", t.contextHead, context, t.question, question)
}

func generalPrompt(lang language.Code, question string) (string, string) {
	t := templatesFor(lang)
	return t.general, fmt.Sprintf("%s %s", t.question, question)
}

// ProvenanceNote is appended to answers grounded in web results.
func ProvenanceNote(lang language.Code) string {
	return templatesFor(lang).provenance
}

// Disclaimer prefixes answers produced without any retrieved material.
func Disclaimer(lang language.Code) string {
	return templatesFor(lang).disclaimer
}

// Apology is the whole answer when every stage failed.
func Apology(lang language.Code) string {
	return templatesFor(lang).apology
}

func aiGeneratedSource(lang language.Code) models.Source {
	return models.Source{
		Title:      templatesFor(lang).aiSource,
		SourceType: models.SourceAIGenerated,
	}
}
