package coder

import (
	"regexp"
	"strconv"
	"strings"

	"astro_insight/internal/core"
	"astro_insight/internal/llm"
)

const maxPromptColumns = 10

const datasetSelectionPrompt = `You are choosing the dataset for an astronomy data analysis request.

Request: {request}

Available datasets:
{datasets}

Reply with the number of the best dataset only.`

const complexityPrompt = `Rate the complexity of the following data analysis request.

Request: {request}
Dataset: {dataset} (columns: {columns})

Reply with exactly one word: simple, moderate or complex.`

const generationPrompt = `Write a complete Python 3 script for this astronomy data analysis request.

Request: {request}

Dataset name: {dataset}
Dataset path: {path}
Columns: {columns}

Complexity: {complexity}. {guidance}

Rules:
- Load the dataset from the path above with pandas.
- Use only the columns listed above.
- Save every figure or output file into the directory given by os.environ["OUTPUT_DIR"].
- Never call plt.show(); use matplotlib with the Agg backend.
- Print a short textual summary of the result to stdout.
- Do not use subprocess, os.system, eval, exec or shutil.rmtree.

Return only the code inside one ` + "```python" + ` block.`

const rewritePrompt = `The previous Python script for this request failed. Fix it.

Request: {request}

Dataset name: {dataset}
Dataset path: {path}
Columns: {columns}

Attempt {attempt} failed with {failure}:
{error}

Previous code:
` + "```python" + `
{code}
` + "```" + `

Rules:
- Keep what already works and fix the reported error.
- Use only the columns listed above.
- Save every figure or output file into os.environ["OUTPUT_DIR"].
- Do not use subprocess, os.system, eval, exec or shutil.rmtree.

Return only the corrected code inside one ` + "```python" + ` block.`

var complexityGuidance = map[core.Complexity]string{
	core.ComplexitySimple:   "Keep the script short: load, compute, print.",
	core.ComplexityModerate: "Use a few clear steps and handle missing values.",
	core.ComplexityComplex:  "Split the work into functions, validate inputs and handle missing values and empty results.",
}

func columnList(ds *core.Dataset) string {
	if len(ds.Columns) == 0 {
		return "(unknown)"
	}
	cols := ds.Columns
	if len(cols) > maxPromptColumns {
		cols = cols[:maxPromptColumns]
	}
	return strings.Join(cols, ", ")
}

func datasetVars(request string, ds *core.Dataset) map[string]string {
	return map[string]string{
		"request": request,
		"dataset": ds.Name,
		"path":    ds.Path,
		"columns": columnList(ds),
	}
}

var indexRe = regexp.MustCompile(`\d+`)

// ParseIndex reads the first integer in reply, falling back to 0 when it is missing or out of range
func ParseIndex(reply string, n int) int {
	m := indexRe.FindString(reply)
	if m == "" {
		return 0
	}
	i, err := strconv.Atoi(m)
	if err != nil || i < 0 || i >= n {
		return 0
	}
	return i
}

// ParseComplexity maps a reply onto a Complexity, moderate when unrecognised
func ParseComplexity(reply string) core.Complexity {
	label := llm.MatchLabel(reply, []string{
		string(core.ComplexitySimple),
		string(core.ComplexityModerate),
		string(core.ComplexityComplex),
	}, string(core.ComplexityModerate))
	return core.Complexity(label)
}
