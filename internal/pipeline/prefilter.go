package pipeline

import (
	"regexp"

	"github.com/sells-group/signal-hunter/internal/model"
)

// categoryPatterns pre-filter evidence before a model is asked about a
// signal. Categories without a pattern accept every chunk.
var categoryPatterns = map[model.SignalCategory]*regexp.Regexp{
	model.CategoryFundingCorporate: regexp.MustCompile(
		`(?i)\b(rais(e|ed|es|ing)|funding|series [a-f]\b|seed round|investors?|investment|valuation|ipo|acquir(e|ed|es|ing|ition))`),
	model.CategoryLeadershipOrg: regexp.MustCompile(
		`(?i)\b(appoint(s|ed|ment)?|hires|hired|joins as|named|promot(ed|es)|new (ceo|cto|cfo|coo|cmo|cro|vp)|chief [a-z]+ officer|vice president|head of)\b`),
	model.CategoryHiringTeam: regexp.MustCompile(
		`(?i)\b(hiring|we'?re hiring|open (roles|positions)|join (our|the) team|careers?|job openings?|now hiring|recruit(ing|er))\b`),
	model.CategoryTechnologyAdoption: regexp.MustCompile(
		`(?i)\b(migrat(e|ed|es|ing|ion)|adopt(s|ed|ing|ion)?|implement(s|ed|ing|ation)?|integration|re-?platform|salesforce|hubspot|aws|azure|gcp|kubernetes|snowflake|tech stack)\b`),
	model.CategoryExpansionPartnerships: regexp.MustCompile(
		`(?i)\b(expan(d|ds|ded|ding|sion)|new (office|market|region)s?|opens?|launch(es|ed)? in|partner(s|ed|ship)?( with)?|international|entering)\b`),
}

func matchesAnyCategory(text string) bool {
	for _, re := range categoryPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// relevantChunks returns the chunks worth asking the model about for sig:
// sources the signal accepts, filtered by its category pattern if any.
func relevantChunks(sig model.SignalDefinition, chunks []model.EvidenceChunk) []model.EvidenceChunk {
	re := categoryPatterns[sig.Category]
	var out []model.EvidenceChunk
	for _, ch := range chunks {
		if !sig.Accepts(ch.SourceType) {
			continue
		}
		if re != nil && !re.MatchString(ch.Title+" "+ch.Snippet) {
			continue
		}
		out = append(out, ch)
	}
	return out
}
