package report

import (
	"fmt"
	"strings"
	"text/template"
)

// NoChangeMessage is the answer expected when a diff carries no regulatory change.
const NoChangeMessage = "Aucun changement réglementaire ce mois-ci."

// DefaultBatchPrompt asks for a report on one batch of changed lines.
const DefaultBatchPrompt = `
Context:
{{.Context}}

Question:
Le contexte ci-dessous présente un diff mettant en évidence les changements dans la section principale d’une page web décrivant le {{.Document}}. Ce diff reflète les différences entre la version récemment récupérée et la version précédente.

Sur la base de ces informations, veuillez rédiger un rapport clair et concis résumant les modifications apportées au {{.Document}}. Mettez en évidence ce qui a été ajouté, supprimé ou modifié, et soulignez toute implication réglementaire significative.

Si les changements sont purement éditoriaux ou n’affectent pas le règlement lui-même, veuillez répondre par : « {{.NoChange}} »
`

// DefaultAggregatePrompt asks for the regulatory changes across all batch summaries.
const DefaultAggregatePrompt = `
Voici les résumés d'analyse des lots extraits du diff du {{.Document}}. En te basant uniquement sur ce contenu, analyse s'il y a eu des changements qui ont un **impact réel sur la réglementation**.

Si **aucune modification n'affecte la réglementation** (c'est-à-dire uniquement des changements éditoriaux, de formatage ou de liens), répond uniquement par :

« {{.NoChange}} »

Sinon, rédige un **rapport complet et structuré** présentant **tous les changements réglementaires détectés**. Pour chaque changement, indique :
- Les **articles impactés**
- Le **type de changement** (ajout, suppression, modification)
- Les **implications réglementaires concrètes**
- Toute **nouvelle exigence** ou **exemption** introduite

N’inclus aucune partie des résumés initiaux dans la réponse. Résume uniquement ce qui a un **impact réglementaire**, de manière claire et synthétique.

Voici les résumés batch par batch :

{{.Context}}
`

// Prompts holds the two prompt templates. Both see PromptData.
type Prompts struct {
	Batch     string
	Aggregate string
}

// PromptData is the data a prompt template is executed with.
type PromptData struct {
	Document string
	Context  string
	NoChange string
}

type compiledPrompts struct {
	batch     *template.Template
	aggregate *template.Template
}

func compilePrompts(p Prompts) (compiledPrompts, error) {
	if strings.TrimSpace(p.Batch) == "" {
		p.Batch = DefaultBatchPrompt
	}
	if strings.TrimSpace(p.Aggregate) == "" {
		p.Aggregate = DefaultAggregatePrompt
	}
	batch, err := template.New("batch").Option("missingkey=error").Parse(p.Batch)
	if err != nil {
		return compiledPrompts{}, fmt.Errorf("parse batch prompt: %w", err)
	}
	aggregate, err := template.New("aggregate").Option("missingkey=error").Parse(p.Aggregate)
	if err != nil {
		return compiledPrompts{}, fmt.Errorf("parse aggregate prompt: %w", err)
	}
	return compiledPrompts{batch: batch, aggregate: aggregate}, nil
}

func render(t *template.Template, data PromptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
