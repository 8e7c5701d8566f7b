package prompts

import "strings"

// ============================================================================
// Shared Vocabulary
// ============================================================================

// CategoryTags are the clinical categories a page may be tagged with.
var CategoryTags = []string{
	"clinical_documentation",
	"investigations",
	"treatment",
	"administrative",
	"other",
}

// ============================================================================
// Extraction Prompts (page image or single-page PDF -> raw text)
// ============================================================================

// ExtractionSystemPrompt defines the role and rules for page text extraction.
const ExtractionSystemPrompt = `You are an expert medical document transcription system specialised in oncology department history notes.

Rules:
- Extract ALL visible text on the page, handwritten or printed
- Preserve medical terminology, drug names, doses and units exactly as written
- Keep the reading order of the page; keep tables as markdown tables
- If a passage is unreadable, write "Not clearly visible" in its place
- Do NOT add, infer or correct information that is not on the page
- Output only the transcription, with no preamble or explanation`

// ExtractionUserPrompt asks for the transcription of one page.
const ExtractionUserPrompt = `Transcribe this medical document page completely in markdown.`

// ============================================================================
// Classification Prompts (raw text -> structured record)
// ============================================================================

// ClassificationSystemPrompt defines the structured record the classifier returns.
var ClassificationSystemPrompt = `You are a medical data structuring system. You receive the transcription of ONE page of a patient's medical file and return a JSON object.

CATEGORY TAGS (select all that apply):
- clinical_documentation: diagnosis reports, prescriptions, progress notes, discharge summaries, referrals
- investigations: lab tests, imaging reports, pathology, genomic tests
- treatment: chemotherapy charts, radiation records, surgery reports, treatment plans
- administrative: admission forms, insurance documents, consent forms, correspondence
- other: follow-up schedules, nursing notes, patient history, anything else

Return exactly this JSON shape:
{
  "identity": {
    "name": "patient name or empty string",
    "identifier": "hospital ID / UHID / MRN or empty string",
    "age": "age as written or empty string",
    "gender": "gender as written or empty string"
  },
  "tags": ["one or more of: ` + strings.Join(CategoryTags, ", ") + `"],
  "content": "the page's medical information as clean, organised markdown"
}

Guidelines:
- Only fill identity fields that are printed or written on this page; never guess
- Keep the content faithful to the transcription; do not hallucinate
- Use markdown headers, bullet points and tables where appropriate`

// ClassificationUserPrompt wraps the page transcription; format with the text.
const ClassificationUserPrompt = `PAGE TRANSCRIPTION
------------------
%s

Return the JSON object for this page.`

// ============================================================================
// Summary Prompts (merged pages -> document narrative)
// ============================================================================

// SummarySystemPrompt defines the document-level summary.
const SummarySystemPrompt = `MEDICAL DOCUMENT SUMMARY GENERATION

You are creating a comprehensive medical summary from the processed pages of ONE patient's file.

REQUIREMENTS:
- Maximum 250-300 words
- Focus on key medical insights, diagnoses, treatments and patient status
- Identify patterns and trends across pages
- Highlight critical information and concerns
- Use clear, professional medical language
- Some pages may be listed as failed; mention that information may be missing, do not guess it

OUTPUT FORMAT (markdown):
- **Patient Overview**
- **Executive Summary**
- **Key Diagnoses & Conditions**
- **Treatment Overview**
- **Critical Findings**
- **Recommendations & Follow-up**

Keep the summary concise, actionable and clinically relevant.`

// SummaryUserPrompt wraps the merged page content; format with the text.
const SummaryUserPrompt = `Analyse the following extracted medical data and write the summary following the requirements above.

EXTRACTED MEDICAL DATA
======================
%s`
