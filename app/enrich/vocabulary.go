package enrich

import (
	"regexp"
	"strings"
)

type vocabularyEntry struct {
	Tag      string
	Keywords []string
	// Summary is the templated bullet used when no source text is available.
	Summary string

	re *regexp.Regexp
}

var specialtyVocabulary = compileVocabulary([]vocabularyEntry{
	{Tag: "cardiology", Keywords: []string{"cardiology", "cardiac", "cardiovascular", "heart", "coronary", "arrhythmia", "atrial fibrillation", "myocardial"},
		Summary: "Cardiovascular risk assessment and care recommendations"},
	{Tag: "endocrinology", Keywords: []string{"endocrinology", "endocrine", "diabetes", "diabetic", "thyroid", "insulin", "glycemic", "glucose"},
		Summary: "Glycemic and metabolic management targets"},
	{Tag: "infectious disease", Keywords: []string{"infectious", "infection", "antimicrobial", "antibiotic", "antiviral", "sepsis", "pathogen"},
		Summary: "Infection prevention, diagnosis and antimicrobial therapy"},
	{Tag: "pediatrics", Keywords: []string{"pediatric", "paediatric", "pediatrics", "child", "children", "infant", "neonatal", "adolescent"},
		Summary: "Age-appropriate recommendations for children and adolescents"},
	{Tag: "geriatrics", Keywords: []string{"geriatric", "geriatrics", "older adult", "elderly", "frailty", "dementia"},
		Summary: "Considerations for older adults and frailty"},
	{Tag: "obstetrics", Keywords: []string{"obstetric", "obstetrics", "pregnancy", "pregnant", "prenatal", "antenatal", "postpartum", "maternal"},
		Summary: "Maternal and pregnancy care recommendations"},
	{Tag: "emergency medicine", Keywords: []string{"emergency", "trauma", "resuscitation", "acute care", "critical care"},
		Summary: "Emergency assessment and stabilization protocols"},
	{Tag: "oncology", Keywords: []string{"oncology", "cancer", "tumor", "tumour", "carcinoma", "chemotherapy", "lymphoma", "leukemia"},
		Summary: "Cancer screening, staging and treatment pathways"},
	{Tag: "pulmonology", Keywords: []string{"respiratory", "pulmonary", "lung", "asthma", "copd", "pneumonia", "airway"},
		Summary: "Respiratory assessment and management recommendations"},
	{Tag: "neurology", Keywords: []string{"neurology", "neurological", "stroke", "epilepsy", "seizure", "migraine", "parkinson", "multiple sclerosis"},
		Summary: "Neurological diagnosis and management guidance"},
	{Tag: "psychiatry", Keywords: []string{"psychiatry", "psychiatric", "mental health", "depression", "anxiety", "schizophrenia", "bipolar"},
		Summary: "Mental health assessment and treatment recommendations"},
	{Tag: "nephrology", Keywords: []string{"nephrology", "kidney", "renal", "dialysis"},
		Summary: "Kidney function monitoring and renal care"},
	{Tag: "gastroenterology", Keywords: []string{"gastroenterology", "gastrointestinal", "liver", "hepatic", "bowel", "colitis", "crohn"},
		Summary: "Gastrointestinal and liver care recommendations"},
	{Tag: "pain management", Keywords: []string{"pain", "analgesic", "analgesia", "opioid"},
		Summary: "Safe prescribing and pain management practices"},
})

var conditionVocabulary = compileVocabulary([]vocabularyEntry{
	{Tag: "hypertension", Keywords: []string{"hypertension", "blood pressure"},
		Summary: "Blood pressure thresholds, targets and treatment steps"},
	{Tag: "diabetes", Keywords: []string{"diabetes", "diabetic"}},
	{Tag: "heart failure", Keywords: []string{"heart failure"}},
	{Tag: "opioid", Keywords: []string{"opioid", "opiate", "buprenorphine", "methadone", "naloxone"},
		Summary: "Guidance on opioid prescribing, tapering and overdose risk"},
	{Tag: "asthma", Keywords: []string{"asthma"}},
	{Tag: "copd", Keywords: []string{"copd", "chronic obstructive"}},
	{Tag: "tuberculosis", Keywords: []string{"tuberculosis", "tb"}},
	{Tag: "hiv", Keywords: []string{"hiv", "aids", "antiretroviral"}},
	{Tag: "hepatitis", Keywords: []string{"hepatitis", "hbv", "hcv"}},
	{Tag: "malaria", Keywords: []string{"malaria"}},
	{Tag: "covid-19", Keywords: []string{"covid-19", "covid", "sars-cov-2", "coronavirus"}},
	{Tag: "influenza", Keywords: []string{"influenza", "flu"}},
	{Tag: "sepsis", Keywords: []string{"sepsis", "septic"}},
	{Tag: "stroke", Keywords: []string{"stroke"}},
	{Tag: "obesity", Keywords: []string{"obesity", "overweight", "weight management"}},
	{Tag: "depression", Keywords: []string{"depression", "depressive"}},
	{Tag: "dementia", Keywords: []string{"dementia", "alzheimer"}},
	{Tag: "chronic kidney disease", Keywords: []string{"chronic kidney disease", "ckd"}},
})

var procedureVocabulary = compileVocabulary([]vocabularyEntry{
	{Tag: "treatment", Keywords: []string{"treatment", "therapy", "therapeutic"},
		Summary: "Treatment recommendations and therapeutic options"},
	{Tag: "diagnosis", Keywords: []string{"diagnosis", "diagnostic", "screening", "testing"},
		Summary: "Diagnostic criteria and screening guidance"},
	{Tag: "prevention", Keywords: []string{"prevention", "preventive", "prophylaxis"},
		Summary: "Prevention strategies and risk reduction"},
	{Tag: "management", Keywords: []string{"management", "managing"},
		Summary: "Clinical management approaches and follow-up"},
	{Tag: "vaccination", Keywords: []string{"vaccination", "vaccine", "immunization", "immunisation"},
		Summary: "Immunization schedules and vaccine recommendations"},
	{Tag: "surgery", Keywords: []string{"surgery", "surgical", "perioperative"}},
	{Tag: "prescribing", Keywords: []string{"prescribing", "prescription", "medication"}},
})

var genericSummaryPoints = []string{
	"Evidence-based clinical practice guideline",
	"Designed for healthcare professionals",
}

const DefaultTag = "clinical guideline"

func compileVocabulary(entries []vocabularyEntry) []vocabularyEntry {
	for i := range entries {
		quoted := make([]string, len(entries[i].Keywords))
		for j, kw := range entries[i].Keywords {
			quoted[j] = strings.ReplaceAll(regexp.QuoteMeta(kw), " ", `\s+`)
		}
		entries[i].re = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)(?:s|es)?\b`)
	}
	return entries
}

func allVocabulary() [][]vocabularyEntry {
	return [][]vocabularyEntry{specialtyVocabulary, conditionVocabulary, procedureVocabulary}
}

// matchVocabulary returns matching entries in vocabulary order.
func matchVocabulary(text string, vocabularies ...[]vocabularyEntry) []vocabularyEntry {
	var matched []vocabularyEntry
	for _, vocabulary := range vocabularies {
		for _, entry := range vocabulary {
			if entry.re.MatchString(text) {
				matched = append(matched, entry)
			}
		}
	}
	return matched
}

// CanonicalTag maps a free-form label onto the vocabulary when it can.
func CanonicalTag(label string) (string, bool) {
	label = strings.ToLower(strings.Join(strings.Fields(label), " "))
	if label == "" {
		return "", false
	}

	for _, vocabulary := range allVocabulary() {
		for _, entry := range vocabulary {
			if entry.Tag == label {
				return entry.Tag, true
			}
		}
	}

	if matched := matchVocabulary(label, conditionVocabulary, specialtyVocabulary); len(matched) > 0 {
		return matched[0].Tag, true
	}

	return label, false
}
