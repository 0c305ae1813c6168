package nodes

const identityPrompt = `Decide who is asking this astronomy question.

- amateur: a general or curious question answered in prose ("what is a quasar?", "why do stars twinkle?")
- professional: a concrete research task on data: classifying an object, retrieving or analysing data, plotting, annotating images or training models

User input: {input}

Reply with exactly one word: {labels}.`

const taskPrompt = `Identify the task type of this professional astronomy request.

- classification: which kind of object something is ("what type of object is M87?")
- retrieval: fetching, querying or analysing tabular data ("mean magnitude of the brightest 100 stars")
- visualization: drawing charts or plots ("plot a colour-magnitude diagram")
- multimark: annotating or labelling images, training or evaluating ML models on them

User input: {input}

Reply with exactly one word: {labels}.`

const classificationPrompt = `Classify the celestial object described below.

Description: {input}

Allowed types: {labels}.
Reply as "<type>: <one sentence reason>".`

const qaPrompt = `You are a friendly astronomy assistant talking to an amateur.
Answer clearly in a few short paragraphs. If you are unsure, say so.

Recent conversation:
{history}

Question: {input}`

const multimarkPrefix = `Image annotation task. Work on the dataset's image references or measurements, produce the requested labels, ` +
	`save annotated images or label files into OUTPUT_DIR, and print a per-class summary.

Request: `

const explainPrompt = `Explain the result of an astronomy visualization to the person who asked for it.

Request: {request}

Script output:
{output}

Generated files:
{files}

Reply in this format:
SUMMARY: <two or three sentences on what the figures show>
INSIGHT: <one key insight>
INSIGHT: <another insight, optional>`
